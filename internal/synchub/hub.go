package synchub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/pb2106/Network-Control/internal/metrics"
)

// Event is one broadcastable unit of state change. The server-assigned
// sequence number and timestamp are the sole ordering keys; events are
// immutable once published.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Hub maintains the set of connected admin sessions, broadcasts every event
// to all of them in production order, and replays the bounded recent-history
// buffer to newly joined sessions. It holds no device business logic.
type Hub struct {
	log     zerolog.Logger
	metrics *metrics.Metrics

	register   chan *Session
	unregister chan *Session
	events     chan Event
	snapshot   chan chan []Event
	done       chan struct{}

	sessions map[*Session]struct{}

	history     []Event
	historySize int
	nextSeq     uint64
	queueSize   int
}

type Options struct {
	HistorySize int
	QueueSize   int
}

func New(log zerolog.Logger, m *metrics.Metrics, opts Options) *Hub {
	hs := opts.HistorySize
	if hs <= 0 {
		hs = 100
	}
	qs := opts.QueueSize
	if qs <= hs {
		// The replay of a full history buffer must fit in a fresh queue.
		qs = hs + 64
	}
	return &Hub{
		log:         log,
		metrics:     m,
		register:    make(chan *Session),
		unregister:  make(chan *Session),
		events:      make(chan Event, 64),
		snapshot:    make(chan chan []Event),
		done:        make(chan struct{}),
		sessions:    make(map[*Session]struct{}),
		historySize: hs,
		nextSeq:     1,
		queueSize:   qs,
	}
}

// Run drives the hub until ctx is canceled. A single goroutine owns the
// session set and the history buffer, which is what guarantees that every
// streaming session observes events in the same order.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for s := range h.sessions {
				s.close()
				delete(h.sessions, s)
			}
			h.metrics.SetSyncSessions(0)
			return

		case s := <-h.register:
			h.sessions[s] = struct{}{}
			// Replay history before the session sees any live event, so a
			// reconnecting admin does not miss actions taken during a brief
			// outage.
			for _, ev := range h.history {
				s.enqueue(ev)
			}
			s.setState(StateStreaming)
			h.metrics.SetSyncSessions(len(h.sessions))
			h.log.Info().Str("session", s.id).Str("operator", s.operator).
				Int("sessions", len(h.sessions)).Int("replayed", len(h.history)).
				Msg("admin session streaming")

		case s := <-h.unregister:
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				s.close()
			}
			h.metrics.SetSyncSessions(len(h.sessions))
			h.log.Info().Str("session", s.id).Int("sessions", len(h.sessions)).
				Msg("admin session closed")

		case ev := <-h.events:
			ev.Seq = h.nextSeq
			h.nextSeq++
			if ev.Timestamp.IsZero() {
				ev.Timestamp = time.Now().UTC()
			}

			h.history = append(h.history, ev)
			if len(h.history) > h.historySize {
				h.history = h.history[1:]
			}

			h.metrics.IncSyncEvent()
			for s := range h.sessions {
				if !s.enqueue(ev) {
					// A stalled consumer must not stall the producer or its
					// peers: disconnect on overflow and let the client
					// reconnect through replay.
					delete(h.sessions, s)
					s.close()
					h.metrics.IncDroppedSession()
					h.metrics.SetSyncSessions(len(h.sessions))
					h.log.Warn().Str("session", s.id).Msg("session dropped: outbound queue overflow")
				}
			}

		case reply := <-h.snapshot:
			out := make([]Event, len(h.history))
			copy(out, h.history)
			reply <- out
		}
	}
}

// Broadcast publishes a state-change event to every streaming session. The
// sequence number and timestamp are assigned inside the hub's run loop.
func (h *Hub) Broadcast(kind string, data any) {
	select {
	case h.events <- Event{Kind: kind, Data: data}:
	case <-h.done:
	}
}

// History returns a copy of the recent-history buffer.
func (h *Hub) History() []Event {
	reply := make(chan []Event, 1)
	select {
	case h.snapshot <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

func marshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
