// Package notify pushes vote stream events to an ntfy topic.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream"
)

const (
	sendTimeout = 30 * time.Second
	queueSize   = 64
)

// Notifier sends one push notification.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: sendTimeout,
		},
		config: cfg,
		logger: logger,
	}
}

// Send posts msg to the configured topic.
func (c *Client) Send(ctx context.Context, msg Message) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	priority := c.config.Priority
	if msg.Priority != "" {
		priority = msg.Priority
	}
	tags := c.config.Tags
	if msg.Tags != "" {
		if tags != "" {
			tags += ","
		}
		tags += msg.Tags
	}

	req.Header.Set("Title", msg.Title)
	req.Header.Set("Priority", priority)
	if tags != "" {
		req.Header.Set("Tags", tags)
	}

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", msg.Title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// Send is a no-op.
func (n *NoopNotifier) Send(_ context.Context, _ Message) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}

// Forwarder queues messages from event handlers and sends them on its own
// goroutine. When the queue is full new messages are dropped.
type Forwarder struct {
	notifier Notifier
	queue    chan Message
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewForwarder starts a Forwarder. Call Close to drain and stop it.
func NewForwarder(n Notifier, logger *zap.Logger) *Forwarder {
	f := &Forwarder{
		notifier: n,
		queue:    make(chan Message, queueSize),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

// Subscribe forwards votes, test votes, reminders and final disconnects
// from c. The returned func unsubscribes all of them.
func (f *Forwarder) Subscribe(c *votestream.Client) func() {
	unsubs := []func(){
		c.OnVote(func(v votestream.Vote) { f.Enqueue(VoteMessage(v, false)) }),
		c.OnTest(func(t votestream.Test) { f.Enqueue(VoteMessage(votestream.Vote(t), true)) }),
		c.OnReminder(func(r votestream.Reminder) { f.Enqueue(ReminderMessage(r)) }),
		c.OnDisconnected(func(d votestream.Disconnect) {
			if !d.Reconnecting && d.Code != 1000 {
				f.Enqueue(DisconnectMessage(d))
			}
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Enqueue adds msg to the queue without blocking. Messages after Close are
// ignored.
func (f *Forwarder) Enqueue(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- msg:
	default:
		f.logger.Warn("notification queue full, dropping message", zap.String("title", msg.Title))
	}
}

// Close sends what is queued and stops the Forwarder. It returns early if
// ctx ends first.
func (f *Forwarder) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for msg := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := f.notifier.Send(ctx, msg); err != nil {
			f.logger.Debug("notification dropped", zap.String("title", msg.Title), zap.Error(err))
		}
		cancel()
	}
}
