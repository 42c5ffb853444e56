package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AppendEvent appends a progress event to a session's durable log.
// Seq is assigned as max(seq)+1 for the session; events for one session
// are appended by a single goroutine, so append order defines seq order.
func (s *Store) AppendEvent(ctx context.Context, sessionID uuid.UUID, stage string, payload EventPayload) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	var ev Event
	var raw []byte
	err = s.pool.QueryRow(ctx,
		`INSERT INTO progress_events (session_id, seq, stage, payload)
		 VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM progress_events WHERE session_id = $1), $2, $3)
		 RETURNING id, session_id, seq, stage, payload, acknowledged, created_at`,
		sessionID, stage, payloadJSON,
	).Scan(&ev.ID, &ev.SessionID, &ev.Seq, &ev.Stage, &raw, &ev.Acknowledged, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	if err := json.Unmarshal(raw, &ev.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return &ev, nil
}

// GetEventsSince retrieves a session's events with seq greater than fromSeq,
// in seq order. fromSeq 0 retrieves the full log.
func (s *Store) GetEventsSince(ctx context.Context, sessionID uuid.UUID, fromSeq int64) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, stage, payload, acknowledged, created_at
		 FROM progress_events
		 WHERE session_id = $1 AND seq > $2
		 ORDER BY seq`,
		sessionID, fromSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetUnacknowledgedEvents retrieves a session's unacknowledged events in seq order
func (s *Store) GetUnacknowledgedEvents(ctx context.Context, sessionID uuid.UUID) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, seq, stage, payload, acknowledged, created_at
		 FROM progress_events
		 WHERE session_id = $1 AND acknowledged = FALSE
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get unacknowledged events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// AcknowledgeEvent marks a single event as acknowledged. Acknowledging an
// already-acknowledged event is a no-op; an unknown event ID reports false.
func (s *Store) AcknowledgeEvent(ctx context.Context, eventID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE progress_events SET acknowledged = TRUE WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAcknowledgedBefore removes acknowledged events created before the
// cutoff and returns the number deleted. Used by the periodic cleanup job.
func (s *Store) DeleteAcknowledgedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM progress_events WHERE acknowledged = TRUE AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete acknowledged events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvents(rows pgx.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Seq, &ev.Stage, &raw,
			&ev.Acknowledged, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(raw, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}
