package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geneacademy/geneacademy/internal/store"
)

// fakeLog is an in-memory Log for hub and notifier tests
type fakeLog struct {
	mu     sync.Mutex
	events map[uuid.UUID][]store.Event
}

func newFakeLog() *fakeLog {
	return &fakeLog{events: make(map[uuid.UUID][]store.Event)}
}

func (f *fakeLog) AppendEvent(_ context.Context, sessionID uuid.UUID, stage string, payload store.EventPayload) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := store.Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       int64(len(f.events[sessionID]) + 1),
		Stage:     stage,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	f.events[sessionID] = append(f.events[sessionID], ev)
	return &ev, nil
}

func (f *fakeLog) GetEventsSince(_ context.Context, sessionID uuid.UUID, fromSeq int64) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Event
	for _, ev := range f.events[sessionID] {
		if ev.Seq > fromSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeLog) count(sessionID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[sessionID])
}

func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribe_ReplaysFromSeq(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	sessionID := uuid.New()
	ctx := context.Background()

	for _, stage := range []string{StageProcessing, StageLLMProcessing, StageLLMCompleted} {
		_, err := log.AppendEvent(ctx, sessionID, stage, Payload{Message: stage})
		require.NoError(t, err)
	}

	sub, err := hub.Subscribe(ctx, sessionID, 1)
	require.NoError(t, err)
	defer sub.Close()

	first := receiveEvent(t, sub)
	second := receiveEvent(t, sub)
	assert.Equal(t, int64(2), first.Seq)
	assert.Equal(t, StageLLMProcessing, first.Stage)
	assert.Equal(t, int64(3), second.Seq)
}

func TestPublish_AppendsThenBroadcasts(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	notifier := NewNotifier(log, hub, zap.NewNop())
	sessionID := uuid.New()
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, sessionID, 0)
	require.NoError(t, err)
	defer sub.Close()

	err = notifier.Publish(ctx, sessionID, StageProcessing, Payload{Message: "pipeline started"})
	require.NoError(t, err)

	ev := receiveEvent(t, sub)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, StageProcessing, ev.Stage)
	assert.Equal(t, "pipeline started", ev.Payload.Message)
	assert.Equal(t, 1, log.count(sessionID))
}

func TestSubscribe_DeduplicatesReplayAndLive(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	sessionID := uuid.New()
	ctx := context.Background()

	first, err := log.AppendEvent(ctx, sessionID, StageProcessing, Payload{Message: "started"})
	require.NoError(t, err)

	sub, err := hub.Subscribe(ctx, sessionID, 0)
	require.NoError(t, err)
	defer sub.Close()

	// The same event arrives live after being included in the replay
	hub.Broadcast(*first)
	second, err := log.AppendEvent(ctx, sessionID, StageCompleted, Payload{Message: "done"})
	require.NoError(t, err)
	hub.Broadcast(*second)

	assert.Equal(t, int64(1), receiveEvent(t, sub).Seq)
	assert.Equal(t, int64(2), receiveEvent(t, sub).Seq)
}

func TestSubscribe_BackfillsDroppedBroadcasts(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	sessionID := uuid.New()
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, sessionID, 0)
	require.NoError(t, err)
	defer sub.Close()

	first, err := log.AppendEvent(ctx, sessionID, StageProcessing, Payload{Message: "started"})
	require.NoError(t, err)
	hub.Broadcast(*first)
	assert.Equal(t, int64(1), receiveEvent(t, sub).Seq)

	// The second event is persisted but its broadcast is lost; when the
	// third arrives live the pump must fill the gap from the log.
	_, err = log.AppendEvent(ctx, sessionID, StageLLMCompleted, Payload{Message: "review done"})
	require.NoError(t, err)
	third, err := log.AppendEvent(ctx, sessionID, StageCompleted, Payload{Message: "done"})
	require.NoError(t, err)
	hub.Broadcast(*third)

	backfilled := receiveEvent(t, sub)
	assert.Equal(t, int64(2), backfilled.Seq)
	assert.Equal(t, StageLLMCompleted, backfilled.Stage)
	assert.Equal(t, int64(3), receiveEvent(t, sub).Seq)
}

func TestSubscribe_LastConnectionWins(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	notifier := NewNotifier(log, hub, zap.NewNop())
	sessionID := uuid.New()
	ctx := context.Background()

	first, err := hub.Subscribe(ctx, sessionID, 0)
	require.NoError(t, err)
	second, err := hub.Subscribe(ctx, sessionID, 0)
	require.NoError(t, err)
	defer second.Close()

	// The evicted subscriber's channel closes
	select {
	case _, ok := <-first.C:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("evicted subscription was not closed")
	}

	require.NoError(t, notifier.Publish(ctx, sessionID, StageProcessing, Payload{Message: "started"}))
	assert.Equal(t, int64(1), receiveEvent(t, second).Seq)
}

func TestHeartbeat_InjectedNotPersisted(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, 20*time.Millisecond)
	sessionID := uuid.New()

	sub, err := hub.Subscribe(context.Background(), sessionID, 0)
	require.NoError(t, err)
	defer sub.Close()

	hb := receiveEvent(t, sub)
	assert.Equal(t, StageHeartbeat, hb.Stage)
	assert.Equal(t, int64(0), hb.Seq)
	assert.Equal(t, 0, log.count(sessionID))
}

func TestSubscription_Close(t *testing.T) {
	log := newFakeLog()
	hub := NewHub(log, time.Hour)
	sessionID := uuid.New()

	sub, err := hub.Subscribe(context.Background(), sessionID, 0)
	require.NoError(t, err)
	sub.Close()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("closed subscription channel did not close")
	}

	// Broadcast to a session with no subscriber is a no-op
	hub.Broadcast(Event{SessionID: sessionID, Seq: 1, Stage: StageProcessing})
}
