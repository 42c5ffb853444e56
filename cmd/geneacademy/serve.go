package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/geneacademy/geneacademy/internal/config"
	"github.com/geneacademy/geneacademy/internal/events"
	"github.com/geneacademy/geneacademy/internal/llm"
	"github.com/geneacademy/geneacademy/internal/logging"
	"github.com/geneacademy/geneacademy/internal/pipeline"
	"github.com/geneacademy/geneacademy/internal/ratelimit"
	"github.com/geneacademy/geneacademy/internal/saver"
	"github.com/geneacademy/geneacademy/internal/server"
	"github.com/geneacademy/geneacademy/internal/store"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start the HTTP server exposing session, upload, content, and progress-event endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to JSON config file (optional; env vars override)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		JSON:     cfg.LogFile != "",
	})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	// One outbound limiter shared by every pipeline run
	limiter := ratelimit.New(cfg.OutboundLimit, cfg.OutboundWindow, cfg.OutboundSpacing)

	client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey, limiter, logger)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer func() { _ = client.Close() }()

	hub := events.NewHub(st, 0)
	notifier := events.NewNotifier(st, hub, logger)

	coordinator := pipeline.NewCoordinator(st, notifier, client, logger)
	mirror, err := saver.New(saver.Options{
		Enabled:  cfg.SaveContentLocally,
		BasePath: cfg.LocalContentPath,
	}, logger)
	if err != nil {
		return err
	}
	coordinator.SetSaver(mirror)

	srv := server.New(server.Options{
		Addr:             cfg.Addr(),
		Store:            st,
		Hub:              hub,
		Notifier:         notifier,
		Runner:           coordinator,
		InboundPerMinute: cfg.InboundPerMinute,
		Logger:           logger,
		OnShutdown:       limiter.Close,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return runEventCleanup(gctx, st, cfg.EventRetention, cfg.CleanupInterval, logger)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// runEventCleanup periodically deletes acknowledged progress events older
// than the retention window.
func runEventCleanup(ctx context.Context, st *store.Store, retention, interval time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := st.DeleteAcknowledgedBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("event cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("cleaned up acknowledged events", zap.Int64("deleted", deleted))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
