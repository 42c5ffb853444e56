package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/geneacademy/geneacademy/internal/events"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// sseEvent is the wire shape streamed to clients
type sseEvent struct {
	ID       string         `json:"id,omitempty"`
	Sequence int64          `json:"sequence"`
	Stage    string         `json:"stage"`
	Data     events.Payload `json:"data"`
}

// WriteProgressEvent streams one progress event. The event's stage doubles
// as the SSE event name so clients can addEventListener per stage.
func (s *SSEWriter) WriteProgressEvent(ev events.Event) error {
	body := sseEvent{
		Sequence: ev.Seq,
		Stage:    ev.Stage,
		Data:     ev.Payload,
	}
	if ev.Seq > 0 {
		body.ID = ev.ID.String()
	}
	return s.writeEvent(ev.Stage, body)
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	_ = s.writeEvent(events.StageError, map[string]string{"error": message})
}

func (s *SSEWriter) writeEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
