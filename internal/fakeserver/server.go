// Package fakeserver is an in-process stand-in for the vote gateway and both
// REST APIs. It records handshakes, replays frames on demand and can inject
// close codes and rate limits.
package fakeserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway op codes. Kept local so the fake never depends on the client.
const (
	OpReady    = 3
	OpVote     = 10
	OpTest     = 11
	OpReminder = 12
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// Config configures a Server. Empty tokens accept any credentials.
type Config struct {
	Token      string
	TopggToken string
}

// Handshake is what a client presented when opening the gateway.
type Handshake struct {
	Authorization string
	Name          string
	Marker        string
	HasMarker     bool
}

// Server is the fake service.
type Server struct {
	cfg    Config
	hub    *Hub
	store  *Store
	logger *zap.Logger
	router http.Handler

	mu           sync.Mutex
	handshakes   []Handshake
	requests     map[string]int
	rateLimited  int
	retryAfter   time.Duration
	unresponsive bool
	closeCode    int
	closeReason  string
	lastTS       int64
	now          func() time.Time
}

// New creates a Server with a seeded store.
func New(cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		hub:      NewHub(logger),
		store:    NewStore(),
		logger:   logger,
		requests: make(map[string]int),
		now:      time.Now,
	}
	s.store.Seed()
	s.router = s.newRouter()
	return s
}

// Run drives the session hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Handler returns the HTTP handler serving /gateway, /topgg and /v1.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the backing data.
func (s *Server) Store() *Store {
	return s.store
}

// Sessions returns the number of open gateway sessions.
func (s *Server) Sessions() int {
	return s.hub.Len()
}

// Handshakes returns every handshake seen so far.
func (s *Server) Handshakes() []Handshake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Handshake(nil), s.handshakes...)
}

// Requests returns how many times "METHOD /path" was requested.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// RateLimitNext makes the next n bot-listing requests fail with 429.
func (s *Server) RateLimitNext(n int, retryAfter time.Duration) {
	s.mu.Lock()
	s.rateLimited = n
	s.retryAfter = retryAfter
	s.mu.Unlock()
}

// SetUnresponsive makes new sessions ignore close frames from the client.
func (s *Server) SetUnresponsive(on bool) {
	s.mu.Lock()
	s.unresponsive = on
	s.mu.Unlock()
}

// SetCloseReply makes new sessions answer a client close frame with code
// and reason instead of echoing the client's code. Zero restores the echo.
func (s *Server) SetCloseReply(code int, reason string) {
	s.mu.Lock()
	s.closeCode = code
	s.closeReason = reason
	s.mu.Unlock()
}

// Send broadcasts a frame {op, d, ts?} to every session.
func (s *Server) Send(op int, d any, ts *int64) error {
	frame := struct {
		Op int    `json:"op"`
		D  any    `json:"d"`
		TS *int64 `json:"ts,omitempty"`
	}{op, d, ts}

	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.hub.Broadcast(raw)
	return nil
}

// SendRaw broadcasts data unchanged.
func (s *Server) SendRaw(data []byte) {
	s.hub.Broadcast(data)
}

// SendVote records v, stamps it with the next marker and broadcasts it.
// The marker is returned.
func (s *Server) SendVote(v Vote) (int64, error) {
	ts := s.nextTS()
	v.CreatedAt = ts
	s.store.AddVote(v)
	return ts, s.Send(OpVote, v, &ts)
}

// SendReminder broadcasts a reminder for userID.
func (s *Server) SendReminder(userID, entityID string) (int64, error) {
	ts := s.nextTS()
	return ts, s.Send(OpReminder, map[string]string{"userId": userID, "entityId": entityID}, &ts)
}

// CloseSessions closes every session with code and reason.
func (s *Server) CloseSessions(code int, reason string) {
	s.hub.CloseAll(code, reason)
}

// DropSessions cuts every socket without a close frame.
func (s *Server) DropSessions() {
	s.hub.DropAll()
}

// nextTS returns a strictly increasing millisecond timestamp.
func (s *Server) nextTS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Server) newRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(s.logger))

	r.Get("/gateway", s.handleGateway)

	r.Route("/topgg", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(s.countRequests)
		r.Use(s.rateLimit)
		r.Use(requireToken(s.cfg.TopggToken))
		r.Get("/bots", s.listBots)
		r.Get("/bots/{id}", s.getBot)
		r.Get("/bots/{id}/stats", s.getBotStats)
		r.Post("/bots/{id}/stats", s.postBotStats)
		r.Get("/bots/{id}/votes", s.getBotVotes)
		r.Get("/bots/{id}/check", s.checkVote)
		r.Get("/users/{id}", s.getListingUser)
		r.Get("/weekend", s.getWeekend)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Use(s.countRequests)
		r.Use(requireToken(s.cfg.Token))
		r.Get("/users/{id}", s.getUser)
		r.Patch("/users/{id}", s.patchUser)
		r.Get("/users/{id}/votes", s.getUserVotes)
		r.Get("/entities/{id}/votes", s.getEntityVotes)
	})

	return r
}

// handleGateway upgrades the connection and sends the ready frame.
func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if s.cfg.Token != "" && auth != s.cfg.Token {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	hs := Handshake{
		Authorization: auth,
		Name:          r.Header.Get("name"),
	}
	if values := r.Header.Values("lastMessageTimestamp"); len(values) > 0 {
		hs.Marker, hs.HasMarker = values[0], true
	}

	s.mu.Lock()
	s.handshakes = append(s.handshakes, hs)
	unresponsive := s.unresponsive
	closeCode, closeReason := s.closeCode, s.closeReason
	s.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &Session{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		id:     uuid.New().String(),
		logger: s.logger,
	}
	if unresponsive {
		sess.hold = s.hub.done
	}
	sess.closeCode, sess.closeReason = closeCode, closeReason

	s.logger.Debug("gateway handshake",
		zap.String("session", sess.id),
		zap.String("name", hs.Name),
		zap.String("marker", hs.Marker),
		zap.String("token", maskToken(auth)),
	)

	ready, err := json.Marshal(map[string]any{
		"op": OpReady,
		"d":  map[string]string{"sessionId": sess.id, "name": hs.Name},
	})
	if err != nil {
		conn.Close()
		return
	}
	sess.send <- ready
	s.hub.add(sess)

	go sess.writePump()
	go sess.readPump()
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		limited := s.rateLimited > 0
		if limited {
			s.rateLimited--
		}
		retryAfter := s.retryAfter
		s.mu.Unlock()

		if limited {
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
			}
			writeError(w, http.StatusTooManyRequests, "You are being rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != token {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("token", maskToken(r.Header.Get("Authorization"))),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// maskToken keeps the first 4 characters of a credential.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
