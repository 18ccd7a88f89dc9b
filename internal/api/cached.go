package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/cache"
)

// DefaultCacheTTL is how long successful GET responses are reused.
const DefaultCacheTTL = 5 * time.Minute

// Lockout refuses calls for a cooldown window after a rate-limit response.
type Lockout struct {
	mu       sync.Mutex
	until    time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewLockout creates a Lockout. A nil now uses time.Now.
func NewLockout(cooldown time.Duration, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	return &Lockout{cooldown: cooldown, now: now}
}

// Trip starts the cooldown from the current instant. A server supplied
// retryAfter longer than the cooldown wins.
func (l *Lockout) Trip(retryAfter time.Duration) {
	wait := l.cooldown
	if retryAfter > wait {
		wait = retryAfter
	}

	l.mu.Lock()
	l.until = l.now().Add(wait)
	l.mu.Unlock()
}

// Remaining returns how long calls stay locked out; zero means unlocked.
func (l *Lockout) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.until.IsZero() {
		return 0
	}
	left := l.until.Sub(l.now())
	if left <= 0 {
		l.until = time.Time{}
		return 0
	}
	return left
}

// ClientConfig configures a caching API client.
type ClientConfig struct {
	Name           string // label for logs and metrics
	NoTokenMessage string
	CacheTTL       time.Duration
	Lockout        *Lockout // nil disables rate-limit lockout
	Recorder       cache.Recorder
	OnRateLimited  func()
	Now            func() time.Time
}

// Client layers token checks, response caching and rate-limit lockout on
// top of a Transport. The cache is private to each Client.
type Client struct {
	name           string
	transport      *Transport
	cache          *cache.TTLCache[json.RawMessage]
	ttl            time.Duration
	noTokenMessage string
	lockout        *Lockout
	onRateLimited  func()
	logger         *zap.Logger
}

// NewClient wraps t.
func NewClient(t *Transport, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	noToken := cfg.NoTokenMessage
	if noToken == "" {
		noToken = "token not provided"
	}

	cacheOpts := []cache.Option{}
	if cfg.Now != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(cfg.Now))
	}
	if cfg.Recorder != nil {
		cacheOpts = append(cacheOpts, cache.WithRecorder(cfg.Recorder))
	}

	return &Client{
		name:           cfg.Name,
		transport:      t,
		cache:          cache.New[json.RawMessage](cacheOpts...),
		ttl:            ttl,
		noTokenMessage: noToken,
		lockout:        cfg.Lockout,
		onRateLimited:  cfg.OnRateLimited,
		logger:         logger.With(zap.String("api", cfg.Name)),
	}
}

// Cache exposes the response cache.
func (c *Client) Cache() *cache.TTLCache[json.RawMessage] {
	return c.cache
}

// Invalidate drops the given cache keys.
func (c *Client) Invalidate(keys ...string) {
	for _, key := range keys {
		if c.cache.Invalidate(key) {
			c.logger.Debug("cache invalidated", zap.String("key", key))
		}
	}
}

// Precheck returns a failure message when a call must not reach the network:
// no token is configured or the rate-limit lockout is active.
func (c *Client) Precheck() (string, bool) {
	if c.transport.Token() == "" {
		return c.noTokenMessage, false
	}
	if c.lockout != nil {
		if left := c.lockout.Remaining(); left > 0 {
			return fmt.Sprintf("rate limited: retry in %s", left.Round(time.Second)), false
		}
	}
	return "", true
}

func (c *Client) do(ctx context.Context, req Request) (json.RawMessage, error) {
	raw, err := c.transport.Do(ctx, req)
	if err == nil {
		return raw, nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && errors.Is(err, ErrRateLimited) {
		if c.lockout != nil {
			c.lockout.Trip(statusErr.RetryAfter)
		}
		if c.onRateLimited != nil {
			c.onRateLimited()
		}
		c.logger.Warn("rate limited", zap.String("path", req.Path), zap.Duration("retryAfter", statusErr.RetryAfter))
	}
	return nil, err
}

// Get performs a cached GET of path with query and decodes the body into T.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values) Result[T] {
	if msg, ok := c.Precheck(); !ok {
		return Failure[T](msg)
	}

	key := cache.Key(path, query)
	if raw, ok := c.cache.Get(key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			c.logger.Debug("cache hit", zap.String("key", key))
			return Success(v)
		}
		c.cache.Invalidate(key)
	}

	raw, err := c.do(ctx, Request{Method: "GET", Path: path, Query: query})
	if err != nil {
		return Failure[T](err.Error())
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Failure[T](fmt.Sprintf("decoding response: %v", err))
	}

	c.cache.Set(key, raw, c.ttl)
	return Success(v)
}

// Send performs an uncached mutating request and, on success, invalidates
// the listed cache keys before decoding the body into T.
func Send[T any](ctx context.Context, c *Client, method, path string, body any, invalidate ...string) Result[T] {
	if msg, ok := c.Precheck(); !ok {
		return Failure[T](msg)
	}

	raw, err := c.do(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return Failure[T](err.Error())
	}

	c.Invalidate(invalidate...)

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Failure[T](fmt.Sprintf("decoding response: %v", err))
	}
	return Success(v)
}
