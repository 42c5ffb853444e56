package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateSession creates a new session record in the created status
func (s *Store) CreateSession(ctx context.Context, userPrompt string, enhance bool) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (user_prompt, enhance)
		 VALUES ($1, $2)
		 RETURNING id, status, user_prompt, enhance, created_at, updated_at`,
		userPrompt, enhance,
	).Scan(&sess.ID, &sess.Status, &sess.UserPrompt, &sess.Enhance, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &sess, nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, user_prompt, enhance, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&sess.ID, &sess.Status, &sess.UserPrompt, &sess.Enhance, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// SetSessionStatus updates a session's status. The update is refused with
// ErrSessionTerminal once the session is completed or failed.
func (s *Store) SetSessionStatus(ctx context.Context, sessionID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ($3, $4)`,
		sessionID, status, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		sess, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		return ErrSessionTerminal
	}
	return nil
}
