// Package saver mirrors final generated content to the local filesystem
// for debugging. The database copy is authoritative; the mirror is
// best-effort and disabled unless configured.
package saver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures the local content mirror
type Options struct {
	Enabled  bool
	BasePath string
}

// Saver writes one markdown file and one JSON metadata file per completed
// session under BasePath/<session-prefix>/.
type Saver struct {
	opts   Options
	logger *zap.Logger
}

type metadata struct {
	SessionID     string    `json:"session_id"`
	AccuracyScore *int      `json:"accuracy_score,omitempty"`
	ContentLength int       `json:"content_length"`
	SavedAt       time.Time `json:"saved_at"`
}

// New returns a saver. With Enabled false, Save is a no-op.
func New(opts Options, logger *zap.Logger) (*Saver, error) {
	if opts.Enabled {
		if opts.BasePath == "" {
			opts.BasePath = "./data/generated_content"
		}
		if err := os.MkdirAll(opts.BasePath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create content directory: %w", err)
		}
		logger.Info("local content saving enabled", zap.String("path", opts.BasePath))
	}
	return &Saver{opts: opts, logger: logger}, nil
}

// Save writes the session's final content and its metadata sidecar
func (s *Saver) Save(sessionID uuid.UUID, content string, accuracyScore *int) error {
	if !s.opts.Enabled {
		return nil
	}

	prefix := sessionID.String()[:8]
	dir := filepath.Join(s.opts.BasePath, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	now := time.Now()
	base := fmt.Sprintf("%s_%s_content", now.Format("20060102_150405"), prefix)

	mdPath := filepath.Join(dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write content file: %w", err)
	}

	meta := metadata{
		SessionID:     sessionID.String(),
		AccuracyScore: accuracyScore,
		ContentLength: len(content),
		SavedAt:       now.UTC(),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, base+".json"), metaJSON, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	s.logger.Debug("content mirrored locally", zap.String("path", mdPath))
	return nil
}
