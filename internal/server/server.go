// Package server provides the HTTP REST API for the content generation service.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geneacademy/geneacademy/internal/events"
	"github.com/geneacademy/geneacademy/internal/pipeline"
	"github.com/geneacademy/geneacademy/internal/server/ratelimit"
	"github.com/geneacademy/geneacademy/internal/store"
)

// Store is the slice of persistence the HTTP layer needs
type Store interface {
	CreateSession(ctx context.Context, userPrompt string, enhance bool) (*store.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*store.Session, error)
	SetSessionStatus(ctx context.Context, sessionID uuid.UUID, status string) error
	SaveDocument(ctx context.Context, sessionID uuid.UUID, input *store.DocumentInput) (*store.Document, error)
	GetLatestContent(ctx context.Context, sessionID uuid.UUID) (*store.GeneratedContent, error)
	GetUnacknowledgedEvents(ctx context.Context, sessionID uuid.UUID) ([]store.Event, error)
	AcknowledgeEvent(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// Runner starts a pipeline run for an uploaded session
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// Notifier publishes progress events from the HTTP layer (upload_complete)
type Notifier interface {
	Publish(ctx context.Context, sessionID uuid.UUID, stage string, payload events.Payload) error
}

// Options wires the server's collaborators
type Options struct {
	Addr             string
	Store            Store
	Hub              *events.Hub
	Notifier         Notifier
	Runner           Runner
	InboundPerMinute int
	Logger           *zap.Logger
	// OnShutdown runs after the HTTP listener drains, before Stop returns.
	// Used to close the outbound limiter so pending model calls fail fast.
	OnShutdown func()
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	store      Store
	hub        *events.Hub
	notifier   Notifier
	runner     Runner
	inbound    *ratelimit.Limiter
	validate   *validator.Validate
	logger     *zap.Logger
	onShutdown func()
}

// New creates a new server instance
func New(opts Options) *Server {
	s := &Server{
		store:      opts.Store,
		hub:        opts.Hub,
		notifier:   opts.Notifier,
		runner:     opts.Runner,
		inbound:    ratelimit.NewLimiter(opts.InboundPerMinute, time.Minute),
		validate:   validator.New(),
		logger:     opts.Logger,
		onShutdown: opts.OnShutdown,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/content/{session_id}", s.handleGetContent)
	mux.HandleFunc("GET /api/events/{session_id}", s.handleEventStream)
	mux.HandleFunc("GET /api/events/{session_id}/poll", s.handlePollEvents)
	mux.HandleFunc("POST /api/events/{event_id}/acknowledge", s.handleAcknowledgeEvent)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled, then drains connections
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	s.logger.Info("http server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.inbound.Stop()
	if s.onShutdown != nil {
		s.onShutdown()
	}
	return err
}

// withMiddleware applies the shared chain: rate limit, logging, CORS
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return s.rateLimitMiddleware(s.loggingMiddleware(corsMiddleware(next)))
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The SSE stream is long-lived; one token per connection is enough
		allowed, retryAfter := s.inbound.Allow(clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", retryAfter.Round(time.Second).String())
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", clientIP(r)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
// Flush is forwarded so SSE streaming keeps working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// clientIP resolves the caller's address, preferring proxy headers
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
