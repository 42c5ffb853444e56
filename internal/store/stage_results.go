package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AppendStageResult records a completed pipeline stage for a session.
// Seq is assigned as max(seq)+1 for the session; the pipeline runs a
// session's stages from a single goroutine, so there is one writer per
// session and the subselect cannot race with itself.
func (s *Store) AppendStageResult(ctx context.Context, sessionID uuid.UUID, stage, output string, accuracyScore *int) (*StageResult, error) {
	var res StageResult
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stage_results (session_id, seq, stage, output, accuracy_score)
		 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM stage_results WHERE session_id = $1), $2, $3, $4)
		 RETURNING id, session_id, seq, stage, output, accuracy_score, created_at`,
		sessionID, stage, output, accuracyScore,
	).Scan(&res.ID, &res.SessionID, &res.Seq, &res.Stage, &res.Output,
		&res.AccuracyScore, &res.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append stage result: %w", err)
	}
	return &res, nil
}

// ListStageResults retrieves all stage results for a session in append order
func (s *Store) ListStageResults(ctx context.Context, sessionID uuid.UUID) ([]StageResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, stage, output, accuracy_score, created_at
		 FROM stage_results
		 WHERE session_id = $1
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage results: %w", err)
	}
	defer rows.Close()

	var results []StageResult
	for rows.Next() {
		var res StageResult
		if err := rows.Scan(&res.ID, &res.SessionID, &res.Seq, &res.Stage, &res.Output,
			&res.AccuracyScore, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stage results: %w", err)
	}
	return results, nil
}
