package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHeartbeatInterval = 15 * time.Second
	subscriberBuffer         = 64
)

// Hub delivers live progress events to at most one subscriber per session.
// A new subscription for a session evicts the previous one.
type Hub struct {
	log       Log
	heartbeat time.Duration

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

// NewHub creates a hub that replays from log. heartbeat <= 0 selects the
// default 15s interval.
func NewHub(log Log, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &Hub{
		log:       log,
		heartbeat: heartbeat,
		subs:      make(map[uuid.UUID]*Subscription),
	}
}

// Subscription is one session's event stream. C yields replayed events
// followed by live ones, with strictly increasing seq, plus periodic
// heartbeats with seq 0. C is closed when the subscription is closed or
// evicted by a newer connection for the same session.
type Subscription struct {
	C <-chan Event

	hub       *Hub
	sessionID uuid.UUID
	live      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe registers the sole subscriber for a session and replays stored
// events with seq > fromSeq before streaming live ones. Registration happens
// before the replay query, so an event appended mid-replay reaches the live
// channel and is deduplicated by the seq watermark.
func (h *Hub) Subscribe(ctx context.Context, sessionID uuid.UUID, fromSeq int64) (*Subscription, error) {
	out := make(chan Event, subscriberBuffer)
	sub := &Subscription{
		C:         out,
		hub:       h,
		sessionID: sessionID,
		live:      make(chan Event, subscriberBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if prev, ok := h.subs[sessionID]; ok {
		prev.evict()
	}
	h.subs[sessionID] = sub
	h.mu.Unlock()

	replay, err := h.log.GetEventsSince(ctx, sessionID, fromSeq)
	if err != nil {
		sub.Close()
		return nil, err
	}

	go sub.pump(fromSeq, replay, out)
	return sub, nil
}

// Broadcast hands a persisted event to the session's subscriber, if any.
// The send never blocks: a subscriber too slow to drain its buffer misses
// the live copy, and its pump backfills the resulting seq gap from the log
// when the next event arrives.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	sub, ok := h.subs[ev.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sub.live <- ev:
	case <-sub.done:
	default:
	}
}

// Close ends the subscription and closes C
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	if s.hub.subs[s.sessionID] == s {
		delete(s.hub.subs, s.sessionID)
	}
	s.hub.mu.Unlock()
	s.evict()
}

// evict signals the pump to stop without touching the hub map; the caller
// holds the hub mutex or has already removed the entry.
func (s *Subscription) evict() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription) pump(fromSeq int64, replay []Event, out chan<- Event) {
	defer close(out)

	lastSeq := fromSeq
	for _, ev := range replay {
		select {
		case out <- ev:
			lastSeq = ev.Seq
		case <-s.done:
			return
		}
	}

	ticker := time.NewTicker(s.hub.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.live:
			if ev.Seq <= lastSeq {
				continue
			}
			// A full live buffer drops broadcasts. A seq jump means events
			// were missed, so refill the gap from the log before delivering.
			if ev.Seq > lastSeq+1 {
				missed, err := s.hub.log.GetEventsSince(context.Background(), s.sessionID, lastSeq)
				if err == nil {
					for _, m := range missed {
						if m.Seq <= lastSeq || m.Seq >= ev.Seq {
							continue
						}
						select {
						case out <- m:
							lastSeq = m.Seq
						case <-s.done:
							return
						}
					}
				}
			}
			lastSeq = ev.Seq
			select {
			case out <- ev:
			case <-s.done:
				return
			}
		case <-ticker.C:
			hb := Event{
				SessionID: s.sessionID,
				Seq:       0,
				Stage:     StageHeartbeat,
				Payload:   Payload{Message: "heartbeat"},
				CreatedAt: time.Now().UTC(),
			}
			select {
			case out <- hb:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}
