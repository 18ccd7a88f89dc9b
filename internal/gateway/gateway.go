// Package gateway maintains the streaming connection to the vote service.
//
// A Gateway owns at most one websocket session at a time. Each session is
// tagged with a generation number; callbacks from a superseded session are
// ignored, so a late close from an old socket can never reschedule or tear
// down the current one.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/checkpoint"
	"github.com/dgnsrekt/votestream/internal/metrics"
)

const (
	DefaultURL               = "wss://api.votestream.dev/gateway"
	DefaultName              = "votestream-go"
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultPingInterval      = 54 * time.Second

	// DisconnectTimeout bounds how long Disconnect waits for the peer to
	// acknowledge the close.
	DisconnectTimeout = 5 * time.Second

	// Time allowed to write a control frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the peer.
	maxFrameSize = 1 << 20

	headerAuthorization = "Authorization"
	headerName          = "name"
	headerMarker        = "lastMessageTimestamp"
)

var (
	ErrAlreadyConnected  = errors.New("gateway: connection already open or in progress")
	ErrDisconnectTimeout = errors.New("gateway: timed out waiting for close")
	ErrSuperseded        = errors.New("gateway: connection attempt superseded")
)

// State is the lifecycle state of a Gateway.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Config holds gateway connection settings.
type Config struct {
	URL   string
	Token string
	Name  string

	AutoReconnect bool
	// ReconnectDelay is the delay before the first retry.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts stops retrying after this many consecutive
	// failures. Zero means unbounded.
	MaxReconnectAttempts int

	HandshakeTimeout time.Duration
	// PingInterval is the keepalive period. Negative disables keepalive.
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// session is one physical websocket connection.
type session struct {
	id   string
	gen  uint64
	conn *websocket.Conn
	done chan struct{}

	// dispatching is set while a frame is being handed to the handler on
	// the read goroutine.
	dispatching atomic.Bool
}

// Gateway is the connection state machine.
type Gateway struct {
	cfg        Config
	handler    Handler
	tracker    *checkpoint.Tracker
	logger     *zap.Logger
	metrics    *metrics.Metrics
	classifier *Classifier
	dialer     *websocket.Dialer
	backoff    *Backoff

	disconnectTimeout time.Duration

	mu          sync.Mutex
	state       State
	generation  uint64
	session     *session
	attempts    int
	intentional bool
	timer       *time.Timer
}

// New creates a Gateway. A nil tracker keeps the marker in memory only.
func New(cfg Config, handler Handler, tracker *checkpoint.Tracker, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}
	if tracker == nil {
		tracker = checkpoint.NewTracker("", logger, m)
	}

	return &Gateway{
		cfg:        cfg,
		handler:    handler,
		tracker:    tracker,
		logger:     logger,
		metrics:    m,
		classifier: NewClassifier(),
		dialer: &websocket.Dialer{
			Proxy:             http.ProxyFromEnvironment,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
		backoff:           NewBackoff(cfg.ReconnectDelay, cfg.MaxReconnectDelay, nil),
		disconnectTimeout: DisconnectTimeout,
	}
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Attempts returns the number of reconnection attempts since the last
// successful open.
func (g *Gateway) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// SessionID returns the id of the open session, or "" when none is open.
func (g *Gateway) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return ""
	}
	return g.session.id
}

// Marker returns the in-memory resumption marker.
func (g *Gateway) Marker() (int64, bool) {
	return g.tracker.Current()
}

// Connect opens a session. The starting marker is override when non-nil,
// otherwise the stored checkpoint. The first dial error is returned; when
// reconnection is enabled the gateway keeps retrying in the background.
func (g *Gateway) Connect(ctx context.Context, override *int64) error {
	g.mu.Lock()
	switch g.state {
	case StateOpening, StateOpen, StateClosing:
		g.mu.Unlock()
		return ErrAlreadyConnected
	}
	g.stopTimerLocked()
	g.state = StateOpening
	g.attempts = 0
	g.intentional = false
	g.generation++
	gen := g.generation
	g.mu.Unlock()

	if marker, ok := g.tracker.Resolve(ctx, override); ok {
		g.logger.Debug("resuming from marker", zap.Int64("marker", marker))
	}

	return g.open(ctx, gen)
}

// Disconnect closes the session with a normal closure and waits for the peer
// to acknowledge it. Pending reconnection is cancelled. ErrDisconnectTimeout
// is returned when the close is not acknowledged within DisconnectTimeout.
//
// Called from an event handler, Disconnect only sends the close frame and
// returns; the read loop reports the close once the peer acknowledges it.
func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	g.intentional = true
	g.stopTimerLocked()
	s := g.session
	if s == nil {
		if g.state != StateIdle {
			g.state = StateClosed
		}
		// Abandon any dial in flight.
		g.generation++
		g.mu.Unlock()
		return nil
	}
	g.state = StateClosing
	g.mu.Unlock()

	g.logger.Info("gateway disconnecting", zap.String("session", s.id))

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		g.logger.Debug("close frame not sent", zap.String("session", s.id), zap.Error(err))
		_ = s.conn.Close()
	}

	if s.dispatching.Load() {
		time.AfterFunc(g.disconnectTimeout, func() {
			select {
			case <-s.done:
			default:
				g.abandon(s)
			}
		})
		return nil
	}

	timer := time.NewTimer(g.disconnectTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		g.abandon(s)
		return ErrDisconnectTimeout
	case <-ctx.Done():
		g.abandon(s)
		return fmt.Errorf("gateway: disconnect: %w", ctx.Err())
	}
}

// abandon drops an unresponsive session without waiting for its close.
func (g *Gateway) abandon(s *session) {
	g.mu.Lock()
	owned := g.session == s
	if owned {
		g.session = nil
		g.state = StateClosed
		g.generation++
	}
	attempt := g.attempts
	g.mu.Unlock()

	// Closed after the generation moved on so the read loop's report is stale.
	_ = s.conn.Close()
	if !owned {
		return
	}

	g.metrics.SetConnected(false)
	g.logger.Warn("gateway close not acknowledged, connection dropped", zap.String("session", s.id))
	g.handler.HandleDisconnected(Disconnect{
		Code:    websocket.CloseAbnormalClosure,
		Reason:  "close not acknowledged",
		Attempt: attempt,
	})
}

func (g *Gateway) open(ctx context.Context, gen uint64) error {
	if !g.current(gen) {
		return ErrSuperseded
	}

	conn, resp, err := g.dialer.DialContext(ctx, g.cfg.URL, g.handshakeHeader())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	g.mu.Lock()
	if gen != g.generation || g.intentional {
		g.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if err != nil {
			return dialError(err, resp)
		}
		return ErrSuperseded
	}

	if err != nil {
		g.mu.Unlock()
		err = dialError(err, resp)
		g.logger.Warn("gateway dial failed", zap.String("url", g.cfg.URL), zap.Error(err))
		g.handler.HandleError(err)
		g.closed(gen, websocket.CloseAbnormalClosure, err.Error())
		return err
	}

	s := &session{
		id:   uuid.New().String(),
		gen:  gen,
		conn: conn,
		done: make(chan struct{}),
	}
	g.session = s
	g.state = StateOpen
	g.attempts = 0
	g.mu.Unlock()

	g.metrics.SetConnected(true)
	g.logger.Info("gateway connected", zap.String("session", s.id), zap.String("url", g.cfg.URL))

	go g.readLoop(s)
	if g.cfg.PingInterval > 0 {
		go g.keepalive(s)
	}
	return nil
}

func (g *Gateway) handshakeHeader() http.Header {
	h := http.Header{}
	h[headerAuthorization] = []string{g.cfg.Token}
	h[headerName] = []string{g.cfg.Name}
	if marker, ok := g.tracker.Current(); ok {
		h[headerMarker] = []string{strconv.FormatInt(marker, 10)}
	}
	return h
}

func (g *Gateway) pongWait() time.Duration {
	return g.cfg.PingInterval * 10 / 9
}

// readLoop reads frames until the connection closes, then reports the close.
func (g *Gateway) readLoop(s *session) {
	defer close(s.done)

	s.conn.SetReadLimit(maxFrameSize)
	if g.cfg.PingInterval > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
		})
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			_ = s.conn.Close()
			code, reason := closeStatus(err)

			var ce *websocket.CloseError
			if !errors.As(err, &ce) && g.current(s.gen) && !g.isIntentional() {
				g.logger.Debug("gateway read error", zap.String("session", s.id), zap.Error(err))
				g.handler.HandleError(fmt.Errorf("gateway: read: %w", err))
			}
			g.closed(s.gen, code, reason)
			return
		}

		if g.cfg.PingInterval > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
		}
		s.dispatching.Store(true)
		g.dispatch(s, message)
		s.dispatching.Store(false)
	}
}

func (g *Gateway) keepalive(s *session) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				g.logger.Debug("gateway ping failed", zap.String("session", s.id), zap.Error(err))
				return
			}
		}
	}
}

func (g *Gateway) dispatch(s *session, message []byte) {
	if !g.current(s.gen) {
		return
	}

	ev, err := g.classifier.Classify(message)
	if err != nil {
		g.metrics.ProtocolError()
		g.logger.Debug("dropping malformed frame", zap.String("session", s.id), zap.Error(err))
		g.handler.HandleError(err)
		return
	}

	if ts, ok := ev.marker(); ok {
		g.tracker.Advance(ts)
	}
	g.metrics.FrameReceived(ev.EventName())

	switch e := ev.(type) {
	case Ready:
		g.logger.Info("gateway ready", zap.String("session", s.id), zap.String("remoteSession", e.SessionID))
		g.handler.HandleReady(e)
	case Vote:
		g.handler.HandleVote(e)
	case Test:
		g.handler.HandleTest(e)
	case Reminder:
		g.handler.HandleReminder(e)
	case UnknownOp:
		g.logger.Debug("unknown op", zap.Int("op", e.Op))
		g.handler.HandleUnknownOp(e)
	}
}

// closed handles the end of session gen and decides whether to reconnect.
func (g *Gateway) closed(gen uint64, code int, reason string) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	g.session = nil
	g.state = StateClosed

	retry := !g.intentional &&
		g.cfg.AutoReconnect &&
		code != websocket.CloseNormalClosure &&
		(g.cfg.MaxReconnectAttempts <= 0 || g.attempts < g.cfg.MaxReconnectAttempts)

	var delay time.Duration
	if retry {
		g.attempts++
		delay = g.backoff.Delay(g.attempts)
	}
	attempt := g.attempts
	g.mu.Unlock()

	g.metrics.SetConnected(false)
	g.logger.Info("gateway disconnected",
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Bool("reconnecting", retry),
	)
	g.handler.HandleDisconnected(Disconnect{
		Code:         code,
		Reason:       reason,
		Reconnecting: retry,
		RetryIn:      delay,
		Attempt:      attempt,
	})
	if !retry {
		return
	}

	g.mu.Lock()
	// The handler may have called Connect or Disconnect.
	if gen != g.generation || g.intentional {
		g.mu.Unlock()
		return
	}
	g.timer = time.AfterFunc(delay, func() { g.reconnect(gen) })
	g.mu.Unlock()

	g.metrics.ReconnectAttempt()
	g.logger.Info("gateway reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (g *Gateway) reconnect(gen uint64) {
	g.mu.Lock()
	if gen != g.generation || g.intentional {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	g.generation++
	next := g.generation
	g.state = StateOpening
	g.mu.Unlock()

	// Failures are reported through the handler and rescheduled by closed.
	_ = g.open(context.Background(), next)
}

func (g *Gateway) current(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.generation
}

func (g *Gateway) isIntentional() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intentional
}

func (g *Gateway) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

func dialError(err error, resp *http.Response) error {
	if resp != nil {
		return fmt.Errorf("gateway: handshake rejected with status %d: %w", resp.StatusCode, err)
	}
	return fmt.Errorf("gateway: dial: %w", err)
}
