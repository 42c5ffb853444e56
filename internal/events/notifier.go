package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier publishes progress events: durable append first, then live
// fan-out. If the append fails the event is not broadcast, so a client
// never sees an event the log cannot replay.
type Notifier struct {
	log    Log
	hub    *Hub
	logger *zap.Logger
}

func NewNotifier(log Log, hub *Hub, logger *zap.Logger) *Notifier {
	return &Notifier{log: log, hub: hub, logger: logger}
}

// Publish appends an event to the session's log and broadcasts it
func (n *Notifier) Publish(ctx context.Context, sessionID uuid.UUID, stage string, payload Payload) error {
	ev, err := n.log.AppendEvent(ctx, sessionID, stage, payload)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", stage, err)
	}

	n.logger.Debug("progress event published",
		zap.String("session_id", sessionID.String()),
		zap.String("stage", stage),
		zap.Int64("seq", ev.Seq))

	n.hub.Broadcast(*ev)
	return nil
}
