// Package votestream is a client for the vote notification service.
//
// A Client keeps a gateway connection open, reconnecting with jittered
// backoff, and republishes classified frames as typed events. The resumption
// marker is mirrored to an optional checkpoint file so a restarted process
// resumes where it stopped. Two cached REST wrappers are exposed as API and
// Topgg.
//
//	c, err := votestream.New(votestream.Options{Token: token, CheckpointPath: "votes.json"})
//	if err != nil { ... }
//	c.OnVote(func(v votestream.Vote) { log.Println(v.UserID, "voted for", v.EntityID) })
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close(context.Background())
package votestream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/checkpoint"
	"github.com/dgnsrekt/votestream/internal/events"
	"github.com/dgnsrekt/votestream/internal/gateway"
	"github.com/dgnsrekt/votestream/internal/metrics"
	"github.com/dgnsrekt/votestream/internal/topgg"
	"github.com/dgnsrekt/votestream/internal/votes"
)

// Options configures a Client. Zero values select the defaults noted on
// each field.
type Options struct {
	// Token authenticates the gateway and the vote-service API.
	Token string
	// TopggToken authenticates the bot-listing API.
	TopggToken string
	// Name is sent in the handshake. Default "votestream-go".
	Name string

	GatewayURL   string // default gateway.DefaultURL
	APIBaseURL   string // default votes.DefaultBaseURL
	TopggBaseURL string // default topgg.DefaultBaseURL

	// AutoReconnect defaults to true.
	AutoReconnect        *bool
	ReconnectDelay       time.Duration // default 1s
	MaxReconnectDelay    time.Duration // default 30s
	MaxReconnectAttempts int           // 0 means unbounded
	// PingInterval defaults to 54s; negative disables keepalive pings.
	PingInterval time.Duration

	CacheTTL          time.Duration // default 5m
	RateLimitCooldown time.Duration // default 60s
	RequestTimeout    time.Duration // default 30s

	// CheckpointPath stores the resumption marker. Empty keeps it in memory.
	CheckpointPath string

	HTTPClient *http.Client
	Logger     *zap.Logger
	// Registerer receives Prometheus collectors when set.
	Registerer prometheus.Registerer
}

// Events holds one topic per event name. Subscribers run on the gateway's
// read goroutine in wire order.
type Events struct {
	Ready        *events.Topic[Ready]
	Vote         *events.Topic[Vote]
	Test         *events.Topic[Test]
	Reminder     *events.Topic[Reminder]
	UnknownOp    *events.Topic[UnknownOp]
	Disconnected *events.Topic[Disconnect]
	Error        *events.Topic[error]
}

func newEvents() *Events {
	return &Events{
		Ready:        events.NewTopic[Ready](EventReady),
		Vote:         events.NewTopic[Vote](EventVote),
		Test:         events.NewTopic[Test](EventTest),
		Reminder:     events.NewTopic[Reminder](EventReminder),
		UnknownOp:    events.NewTopic[UnknownOp](EventUnknownOp),
		Disconnected: events.NewTopic[Disconnect](EventDisconnected),
		Error:        events.NewTopic[error](EventError),
	}
}

// Client is the vote stream facade.
type Client struct {
	// API is the vote-service REST API.
	API *votes.Client
	// Topgg is the bot-listing REST API.
	Topgg *topgg.Client
	// Events exposes the topics behind the On* helpers.
	Events *Events

	gateway *gateway.Gateway
	tracker *checkpoint.Tracker
	logger  *zap.Logger
}

// New builds a Client. No connection is made until Connect.
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := metrics.New(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	autoReconnect := true
	if opts.AutoReconnect != nil {
		autoReconnect = *opts.AutoReconnect
	}

	ev := newEvents()
	tracker := checkpoint.NewTracker(opts.CheckpointPath, logger.Named("checkpoint"), m)
	tracker.OnPersistError(func(err error) { ev.Error.Publish(err) })

	gw := gateway.New(gateway.Config{
		URL:                  opts.GatewayURL,
		Token:                opts.Token,
		Name:                 opts.Name,
		AutoReconnect:        autoReconnect,
		ReconnectDelay:       opts.ReconnectDelay,
		MaxReconnectDelay:    opts.MaxReconnectDelay,
		MaxReconnectAttempts: opts.MaxReconnectAttempts,
		PingInterval:         opts.PingInterval,
	}, dispatcher{ev}, tracker, logger.Named("gateway"), m)

	return &Client{
		API: votes.New(votes.Config{
			BaseURL:    opts.APIBaseURL,
			Token:      opts.Token,
			CacheTTL:   opts.CacheTTL,
			Timeout:    opts.RequestTimeout,
			HTTPClient: opts.HTTPClient,
		}, logger.Named("votes"), m),
		Topgg: topgg.New(topgg.Config{
			BaseURL:           opts.TopggBaseURL,
			Token:             opts.TopggToken,
			CacheTTL:          opts.CacheTTL,
			RateLimitCooldown: opts.RateLimitCooldown,
			Timeout:           opts.RequestTimeout,
			HTTPClient:        opts.HTTPClient,
		}, logger.Named("topgg"), m),
		Events:  ev,
		gateway: gw,
		tracker: tracker,
		logger:  logger,
	}, nil
}

// Connect opens the gateway, resuming from the stored checkpoint if any.
// The first dial error is returned; with AutoReconnect the client keeps
// trying in the background and reports progress through events.
func (c *Client) Connect(ctx context.Context) error {
	return c.gateway.Connect(ctx, nil)
}

// ConnectFrom opens the gateway resuming from marker instead of the stored
// checkpoint.
func (c *Client) ConnectFrom(ctx context.Context, marker int64) error {
	return c.gateway.Connect(ctx, &marker)
}

// Disconnect closes the gateway and cancels pending reconnection. It returns
// ErrDisconnectTimeout when the server does not acknowledge the close.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.gateway.Disconnect(ctx)
}

// Close disconnects and writes the latest marker to the checkpoint file.
func (c *Client) Close(ctx context.Context) error {
	disconnectErr := c.gateway.Disconnect(ctx)
	closeErr := c.tracker.Close(ctx)
	return errors.Join(disconnectErr, closeErr)
}

// Flush blocks until the latest observed marker has been written to the
// checkpoint file or ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	return c.tracker.Flush(ctx)
}

// State returns the gateway lifecycle state.
func (c *Client) State() State {
	return c.gateway.State()
}

// Marker returns the latest resumption marker seen or loaded.
func (c *Client) Marker() (int64, bool) {
	return c.gateway.Marker()
}

// SessionID returns the local id of the open gateway session.
func (c *Client) SessionID() string {
	return c.gateway.SessionID()
}

// OnReady subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnReady(fn func(Ready)) func() { return c.Events.Ready.Subscribe(fn) }

// OnVote subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnVote(fn func(Vote)) func() { return c.Events.Vote.Subscribe(fn) }

// OnTest subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnTest(fn func(Test)) func() { return c.Events.Test.Subscribe(fn) }

// OnReminder subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnReminder(fn func(Reminder)) func() { return c.Events.Reminder.Subscribe(fn) }

// OnUnknownOp subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnUnknownOp(fn func(UnknownOp)) func() { return c.Events.UnknownOp.Subscribe(fn) }

// OnDisconnected subscribes fn and returns a func that unsubscribes it.
func (c *Client) OnDisconnected(fn func(Disconnect)) func() {
	return c.Events.Disconnected.Subscribe(fn)
}

// OnError subscribes fn to transport, protocol and checkpoint errors.
func (c *Client) OnError(fn func(error)) func() { return c.Events.Error.Subscribe(fn) }

// dispatcher republishes gateway callbacks on the event topics.
type dispatcher struct {
	ev *Events
}

func (d dispatcher) HandleReady(e Ready)             { d.ev.Ready.Publish(e) }
func (d dispatcher) HandleVote(e Vote)               { d.ev.Vote.Publish(e) }
func (d dispatcher) HandleTest(e Test)               { d.ev.Test.Publish(e) }
func (d dispatcher) HandleReminder(e Reminder)       { d.ev.Reminder.Publish(e) }
func (d dispatcher) HandleUnknownOp(e UnknownOp)     { d.ev.UnknownOp.Publish(e) }
func (d dispatcher) HandleDisconnected(e Disconnect) { d.ev.Disconnected.Publish(e) }
func (d dispatcher) HandleError(err error)           { d.ev.Error.Publish(err) }
