// Package events fans progress events out to per-session subscribers.
// Every content event is appended to the durable log before broadcast;
// the log is authoritative and reconnecting clients replay from it.
package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/geneacademy/geneacademy/internal/store"
)

// Stage tags carried by progress events
const (
	StageConnected      = "connected"
	StageUploadComplete = "upload_complete"
	StageProcessing     = "processing"
	StageLLMProcessing  = "llm_processing"
	StageLLMCompleted   = "llm_completed"
	StageLLMError       = "llm_error"
	StageAgentCompleted = "agent_completed"
	StageContentSaved   = "content_saved"
	StageCompleted      = "completed"
	StageError          = "error"
	StageHeartbeat      = "heartbeat"
)

// Event and Payload are the stored representations; the hub streams them
// unchanged so subscribers see exactly what a later replay would return.
type (
	Event   = store.Event
	Payload = store.EventPayload
)

// Log is the slice of the store the events package needs
type Log interface {
	AppendEvent(ctx context.Context, sessionID uuid.UUID, stage string, payload store.EventPayload) (*store.Event, error)
	GetEventsSince(ctx context.Context, sessionID uuid.UUID, fromSeq int64) ([]store.Event, error)
}
