package fakeserver

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Send buffer size per session.
	sendBufferSize = 256
)

// Session is one gateway connection held by the fake server.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	logger *zap.Logger

	// hold, when set, keeps a closed socket open until it is closed so the
	// peer never sees its close acknowledged.
	hold <-chan struct{}

	// closeCode, when non-zero, replaces the echoed code in the close reply.
	closeCode   int
	closeReason string
}

// ID returns the session id sent in the ready frame.
func (s *Session) ID() string {
	return s.id
}

// readPump discards client data frames and keeps the read side alive so
// control frames are processed.
func (s *Session) readPump() {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	switch {
	case s.hold != nil:
		s.conn.SetCloseHandler(func(int, string) error { return nil })
	case s.closeCode != 0:
		s.conn.SetCloseHandler(func(int, string) error {
			msg := websocket.FormatCloseMessage(s.closeCode, s.closeReason)
			s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		})
	}

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read error",
					zap.String("session", s.id),
					zap.Error(err),
				)
			}
			if s.hold != nil {
				<-s.hold
			}
			return
		}
	}
}

// writePump writes queued frames and pings to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed, send close message
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("websocket write error",
					zap.String("session", s.id),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
