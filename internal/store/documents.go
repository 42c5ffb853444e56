package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DocumentInput carries the fields needed to record an uploaded document
type DocumentInput struct {
	FileName     string
	FileType     string
	FileSize     int64
	OriginalText string
}

// SaveDocument stores the extracted text of an uploaded file
func (s *Store) SaveDocument(ctx context.Context, sessionID uuid.UUID, input *DocumentInput) (*Document, error) {
	var doc Document
	err := s.pool.QueryRow(ctx,
		`INSERT INTO documents (session_id, file_name, file_type, file_size, original_text)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, session_id, file_name, file_type, file_size, original_text, uploaded_at`,
		sessionID, input.FileName, input.FileType, input.FileSize, input.OriginalText,
	).Scan(&doc.ID, &doc.SessionID, &doc.FileName, &doc.FileType, &doc.FileSize,
		&doc.OriginalText, &doc.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	return &doc, nil
}

// GetDocument retrieves the most recent document for a session.
// Returns nil when the session has no document yet.
func (s *Store) GetDocument(ctx context.Context, sessionID uuid.UUID) (*Document, error) {
	var doc Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, file_name, file_type, file_size, original_text, uploaded_at
		 FROM documents
		 WHERE session_id = $1
		 ORDER BY uploaded_at DESC
		 LIMIT 1`,
		sessionID,
	).Scan(&doc.ID, &doc.SessionID, &doc.FileName, &doc.FileType, &doc.FileSize,
		&doc.OriginalText, &doc.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}
