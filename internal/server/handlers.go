package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geneacademy/geneacademy/internal/events"
	"github.com/geneacademy/geneacademy/internal/ingestion"
	"github.com/geneacademy/geneacademy/internal/pipeline"
	"github.com/geneacademy/geneacademy/internal/store"
)

// uploadSlack covers multipart framing overhead on top of the file cap
const uploadSlack = 1 << 20

type createSessionRequest struct {
	UserPrompt string `json:"user_prompt" validate:"max=1000"`
	Enhance    bool   `json:"enhance"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Enhance   bool      `json:"enhance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSessionResponse(sess *store.Session) sessionResponse {
	return sessionResponse{
		ID:        sess.ID.String(),
		Status:    sess.Status,
		Enhance:   sess.Enhance,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if err := ingestion.ValidateUserPrompt(req.UserPrompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.store.CreateSession(r.Context(), req.UserPrompt, req.Enhance)
	if err != nil {
		s.logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUID(w, r.PathValue("id"), "session ID")
	if !ok {
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to get session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingestion.MaxFileSize+uploadSlack)
	if err := r.ParseMultipartForm(ingestion.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form or file too large")
		return
	}

	sessionID, ok := parseUUID(w, r.FormValue("session_id"), "session ID")
	if !ok {
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to get session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	// A session carries at most one pipeline run. Re-uploading into a session
	// that is already processing (or finished) would race a second run against
	// the first, so only freshly created sessions accept a document.
	if sess.Status != store.StatusCreated {
		writeError(w, http.StatusConflict, "Session already has an upload")
		return
	}

	// Form fields override the values recorded at session creation
	userPrompt := sess.UserPrompt
	if v := r.FormValue("user_prompt"); v != "" {
		userPrompt = v
	}
	if err := ingestion.ValidateUserPrompt(userPrompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enhance := sess.Enhance
	if v := r.FormValue("enhance"); v != "" {
		enhance, _ = strconv.ParseBool(v)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	if err := ingestion.ValidateUpload(header.Filename, header.Size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	text, err := ingestion.ExtractText(header.Filename, data)
	if err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}

	doc := &store.DocumentInput{
		FileName:     ingestion.SanitizeFilename(header.Filename),
		FileType:     fileExt(header.Filename),
		FileSize:     header.Size,
		OriginalText: text,
	}
	if _, err := s.store.SaveDocument(r.Context(), sessionID, doc); err != nil {
		s.logger.Error("failed to save document", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save document")
		return
	}
	if err := s.store.SetSessionStatus(r.Context(), sessionID, store.StatusProcessing); err != nil {
		writeError(w, httpStatus(err), err.Error())
		return
	}
	if err := s.notifier.Publish(r.Context(), sessionID, events.StageUploadComplete, events.Payload{
		Message: "Document uploaded, processing started",
	}); err != nil {
		s.logger.Error("failed to publish upload event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to record upload")
		return
	}

	// The pipeline runs detached from this request: a client that uploads
	// and immediately disconnects still gets its content generated.
	go func() {
		if err := s.runner.Run(context.Background(), pipeline.Request{
			SessionID:  sessionID,
			Text:       text,
			UserPrompt: userPrompt,
			Enhance:    enhance,
		}); err != nil {
			s.logger.Error("pipeline run failed",
				zap.String("session_id", sessionID.String()), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID.String(),
		"status":     store.StatusProcessing,
	})
}

type contentResponse struct {
	SessionID     string    `json:"session_id"`
	Content       string    `json:"content"`
	Version       int       `json:"version"`
	AccuracyScore *int      `json:"accuracy_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUID(w, r.PathValue("session_id"), "session ID")
	if !ok {
		return
	}

	content, err := s.store.GetLatestContent(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to get content", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get content")
		return
	}
	if content == nil {
		writeError(w, http.StatusNotFound, "No content generated for this session yet")
		return
	}

	writeJSON(w, http.StatusOK, contentResponse{
		SessionID:     sessionID.String(),
		Content:       content.Content,
		Version:       content.Version,
		AccuracyScore: content.AccuracyScore,
		CreatedAt:     content.CreatedAt,
	})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUID(w, r.PathValue("session_id"), "session ID")
	if !ok {
		return
	}

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to get session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	var fromSeq int64
	if v := r.URL.Query().Get("from_seq"); v != "" {
		fromSeq, err = strconv.ParseInt(v, 10, 64)
		if err != nil || fromSeq < 0 {
			writeError(w, http.StatusBadRequest, "Invalid from_seq parameter")
			return
		}
	}

	sw, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sub, err := s.hub.Subscribe(r.Context(), sessionID, fromSeq)
	if err != nil {
		s.logger.Error("failed to subscribe to events", zap.Error(err))
		sw.WriteError("Failed to subscribe to session events")
		return
	}
	defer sub.Close()

	// Synthetic connection marker, never persisted
	_ = sw.WriteProgressEvent(events.Event{
		SessionID: sessionID,
		Stage:     events.StageConnected,
		Payload:   events.Payload{Message: "Connected to session event stream"},
		CreatedAt: time.Now().UTC(),
	})

	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				// Evicted by a newer connection for this session
				return
			}
			if err := sw.WriteProgressEvent(ev); err != nil {
				return
			}
			if ev.Stage == events.StageCompleted || ev.Stage == events.StageError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUID(w, r.PathValue("session_id"), "session ID")
	if !ok {
		return
	}

	evs, err := s.store.GetUnacknowledgedEvents(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to poll events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to poll events")
		return
	}
	if evs == nil {
		evs = []store.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID.String(),
		"events":     evs,
	})
}

func (s *Server) handleAcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseUUID(w, r.PathValue("event_id"), "event ID")
	if !ok {
		return
	}

	acked, err := s.store.AcknowledgeEvent(r.Context(), eventID)
	if err != nil {
		s.logger.Error("failed to acknowledge event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to acknowledge event")
		return
	}
	if !acked {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func parseUUID(w http.ResponseWriter, raw, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+what)
		return uuid.Nil, false
	}
	return id, true
}

func fileExt(fileName string) string {
	return strings.ToLower(filepath.Ext(fileName))
}
