package fakeserver

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub tracks live gateway sessions and fans frames out to them.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			h.mu.Unlock()
			h.logger.Debug("session registered", zap.String("session", s.id))

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.send)
			}
			h.mu.Unlock()
			h.logger.Debug("session unregistered", zap.String("session", s.id))

		case frame := <-h.broadcast:
			h.mu.RLock()
			for s := range h.sessions {
				select {
				case s.send <- frame:
				default:
					// Buffer full, schedule disconnect
					go h.remove(s)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// shutdown closes every session's send channel.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		close(s.send)
		delete(h.sessions, s)
	}
}

// Broadcast queues frame for every open session.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

func (h *Hub) add(s *Session) {
	select {
	case h.register <- s:
	case <-h.done:
		close(s.send)
	}
}

func (h *Hub) remove(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll sends a close frame with code and reason to every session and
// drops the sockets.
func (h *Hub) CloseAll(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	for _, s := range h.snapshot() {
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			h.logger.Debug("close frame not sent", zap.String("session", s.id), zap.Error(err))
		}
		s.conn.Close()
	}
}

// DropAll closes every socket without a close frame.
func (h *Hub) DropAll() {
	for _, s := range h.snapshot() {
		s.conn.Close()
	}
}

func (h *Hub) snapshot() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		list = append(list, s)
	}
	return list
}
