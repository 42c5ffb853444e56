package store

import (
	"time"

	"github.com/google/uuid"
)

// Session status constants. Transitions are monotonic: once a session
// reaches completed or failed, its status never changes again.
const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Session represents one end-to-end content generation request
type Session struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	UserPrompt string    `json:"user_prompt"`
	Enhance    bool      `json:"enhance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Document holds the extracted text of an uploaded source file
type Document struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	FileName     string    `json:"file_name"`
	FileType     string    `json:"file_type"`
	FileSize     int64     `json:"file_size"`
	OriginalText string    `json:"original_text"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// StageResult records the output of a single pipeline stage. Seq is
// assigned per session, starting at 1, in the order stages complete.
type StageResult struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Seq           int       `json:"seq"`
	Stage         string    `json:"stage"`
	Output        string    `json:"output"`
	AccuracyScore *int      `json:"accuracy_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// GeneratedContent is one version of the content produced for a session.
// Version 1 is the first draft; revision and enhancement append new versions.
type GeneratedContent struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Version       int       `json:"version"`
	Content       string    `json:"content"`
	AccuracyScore *int      `json:"accuracy_score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EventPayload is the JSON body attached to a progress event
type EventPayload struct {
	Message       string `json:"message"`
	AccuracyScore *int   `json:"accuracy_score,omitempty"`
	RequestCount  *int   `json:"request_count,omitempty"`
}

// Event is one durable progress event. Seq is assigned per session,
// starting at 1, strictly increasing in append order.
type Event struct {
	ID           uuid.UUID    `json:"id"`
	SessionID    uuid.UUID    `json:"session_id"`
	Seq          int64        `json:"seq"`
	Stage        string       `json:"stage"`
	Payload      EventPayload `json:"payload"`
	Acknowledged bool         `json:"acknowledged"`
	CreatedAt    time.Time    `json:"created_at"`
}
