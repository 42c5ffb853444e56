package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveContent stores a new version of generated content for a session.
// Version is assigned as max(version)+1, same single-writer reasoning as
// AppendStageResult.
func (s *Store) SaveContent(ctx context.Context, sessionID uuid.UUID, content string, accuracyScore *int) (*GeneratedContent, error) {
	var gc GeneratedContent
	err := s.pool.QueryRow(ctx,
		`INSERT INTO generated_content (session_id, version, content, accuracy_score)
		 VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM generated_content WHERE session_id = $1), $2, $3)
		 RETURNING id, session_id, version, content, accuracy_score, created_at`,
		sessionID, content, accuracyScore,
	).Scan(&gc.ID, &gc.SessionID, &gc.Version, &gc.Content, &gc.AccuracyScore, &gc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save content: %w", err)
	}
	return &gc, nil
}

// SetContentScore stamps the accuracy score on the session's latest content
// version. Returns an error when the session has no content yet.
func (s *Store) SetContentScore(ctx context.Context, sessionID uuid.UUID, accuracyScore int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generated_content
		 SET accuracy_score = $2
		 WHERE session_id = $1
		   AND version = (SELECT MAX(version) FROM generated_content WHERE session_id = $1)`,
		sessionID, accuracyScore,
	)
	if err != nil {
		return fmt.Errorf("failed to set content score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no content to score for session %s", sessionID)
	}
	return nil
}

// GetLatestContent retrieves the highest-version content for a session.
// Returns nil when no content has been generated yet.
func (s *Store) GetLatestContent(ctx context.Context, sessionID uuid.UUID) (*GeneratedContent, error) {
	var gc GeneratedContent
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, version, content, accuracy_score, created_at
		 FROM generated_content
		 WHERE session_id = $1
		 ORDER BY version DESC
		 LIMIT 1`,
		sessionID,
	).Scan(&gc.ID, &gc.SessionID, &gc.Version, &gc.Content, &gc.AccuracyScore, &gc.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest content: %w", err)
	}
	return &gc, nil
}

// ListContentVersions retrieves every content version for a session in order
func (s *Store) ListContentVersions(ctx context.Context, sessionID uuid.UUID) ([]GeneratedContent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, version, content, accuracy_score, created_at
		 FROM generated_content
		 WHERE session_id = $1
		 ORDER BY version`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list content versions: %w", err)
	}
	defer rows.Close()

	var versions []GeneratedContent
	for rows.Next() {
		var gc GeneratedContent
		if err := rows.Scan(&gc.ID, &gc.SessionID, &gc.Version, &gc.Content,
			&gc.AccuracyScore, &gc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan content version: %w", err)
		}
		versions = append(versions, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read content versions: %w", err)
	}
	return versions, nil
}
