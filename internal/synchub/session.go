package synchub

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State is the lifecycle of one admin connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateStreaming
	StateClosed
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		// Localhost is fine for development and reverse proxies; everything
		// else must be same-origin.
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Session is one admin connection in the hub. Events flow hub -> queue ->
// write pump; the read pump only watches for liveness and close. Mutations
// arrive over the REST surface, never over the socket.
type Session struct {
	id       string
	operator string
	hub      *Hub
	conn     *websocket.Conn

	mu     sync.Mutex
	state  State
	queue  chan Event
	closed bool
}

func newSession(hub *Hub, conn *websocket.Conn, operator string) *Session {
	return &Session{
		id:       uuid.NewString(),
		operator: operator,
		hub:      hub,
		conn:     conn,
		state:    StateAuthenticated,
		queue:    make(chan Event, hub.queueSize),
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

// enqueue appends an event to the session's bounded outbound queue. It never
// blocks; false means the queue is full and the session must be dropped.
func (s *Session) enqueue(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.queue <- ev:
		return true
	default:
		return false
	}
}

// close releases the session's resources. Safe to call more than once; the
// hub calls it from its run loop, the pumps call it on transport failure.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	close(s.queue)
	s.mu.Unlock()
	_ = s.conn.Close()
}

func (s *Session) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Inbound payloads are drained and discarded; transport failure is
		// the only signal we care about here.
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := marshalEvent(ev)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Serve upgrades an already-authenticated HTTP request into a streaming
// session. The operator identity must have been established by the caller;
// the hub itself never sees credentials.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, operator string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := newSession(h, conn, operator)

	select {
	case h.register <- s:
	case <-h.done:
		_ = conn.Close()
		return context.Canceled
	}

	go s.writePump()
	go s.readPump()
	return nil
}
