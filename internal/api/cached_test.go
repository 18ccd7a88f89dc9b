package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newThingServer(t *testing.T, status *atomic.Int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if status != nil && status.Load() != 0 {
			w.WriteHeader(int(status.Load()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(thing{ID: "1", Name: r.URL.Path})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGet_CachesWithinTTL(t *testing.T) {
	srv, hits := newThingServer(t, nil)
	clk := &clock{now: time.Unix(1700000000, 0)}
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil),
		ClientConfig{Name: "test", CacheTTL: time.Minute, Now: clk.Now}, nil)

	first := Get[thing](context.Background(), c, "/things/1", nil)
	second := Get[thing](context.Background(), c, "/things/1", nil)

	require.True(t, first.OK(), first.Message())
	require.True(t, second.OK(), second.Message())
	assert.Equal(t, first.Value(), second.Value())
	assert.Equal(t, int32(1), hits.Load())

	clk.Advance(time.Minute)
	third := Get[thing](context.Background(), c, "/things/1", nil)
	require.True(t, third.OK())
	assert.Equal(t, int32(2), hits.Load(), "expired entry must be refetched")
}

func TestGet_QueryOrderSharesEntry(t *testing.T) {
	srv, hits := newThingServer(t, nil)
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil), ClientConfig{}, nil)

	Get[thing](context.Background(), c, "/things", url.Values{"a": {"1"}, "b": {"2"}})
	Get[thing](context.Background(), c, "/things", url.Values{"b": {"2"}, "a": {"1"}})

	assert.Equal(t, int32(1), hits.Load())
}

func TestGet_EmptyParamKeyMatchesRequest(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(thing{ID: r.URL.RawQuery})
	}))
	t.Cleanup(srv.Close)
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil),
		ClientConfig{CacheTTL: time.Minute}, nil)

	withEmpty := Get[thing](context.Background(), c, "/things", url.Values{"search": {""}})
	without := Get[thing](context.Background(), c, "/things", nil)
	again := Get[thing](context.Background(), c, "/things", url.Values{"search": {""}})

	require.True(t, withEmpty.OK(), withEmpty.Message())
	assert.Equal(t, "search=", withEmpty.Value().ID)
	assert.Equal(t, "", without.Value().ID, "different request, different entry")
	assert.Equal(t, "search=", again.Value().ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"search=", ""}, queries)
}

func TestGet_NoToken(t *testing.T) {
	srv, hits := newThingServer(t, nil)
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL}, nil),
		ClientConfig{NoTokenMessage: "Top.gg token not provided"}, nil)

	res := Get[thing](context.Background(), c, "/things/1", nil)

	assert.False(t, res.OK())
	assert.Equal(t, "Top.gg token not provided", res.Message())
	assert.Equal(t, int32(0), hits.Load())
}

func TestGet_FailureNotCached(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv, hits := newThingServer(t, &status)
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil), ClientConfig{}, nil)

	res := Get[thing](context.Background(), c, "/things/1", nil)
	assert.False(t, res.OK())
	assert.Contains(t, res.Message(), "500")

	status.Store(0)
	res = Get[thing](context.Background(), c, "/things/1", nil)
	assert.True(t, res.OK())
	assert.Equal(t, int32(2), hits.Load())
}

func TestSend_Invalidates(t *testing.T) {
	srv, hits := newThingServer(t, nil)
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil), ClientConfig{}, nil)

	Get[thing](context.Background(), c, "/things/1", nil)
	Get[thing](context.Background(), c, "/things/2", nil)
	require.Equal(t, int32(2), hits.Load())

	res := Send[thing](context.Background(), c, http.MethodPost, "/things/1", map[string]string{"name": "x"}, "/things/1")
	require.True(t, res.OK(), res.Message())
	require.Equal(t, int32(3), hits.Load())

	Get[thing](context.Background(), c, "/things/1", nil)
	Get[thing](context.Background(), c, "/things/2", nil)
	assert.Equal(t, int32(4), hits.Load(), "only /things/1 was invalidated")
}

func TestLockout_BlocksCallsAfterRateLimit(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv, hits := newThingServer(t, &status)

	clk := &clock{now: time.Unix(1700000000, 0)}
	var limited int
	c := NewClient(NewTransport(TransportConfig{BaseURL: srv.URL, Token: "t"}, nil), ClientConfig{
		Lockout:       NewLockout(60*time.Second, clk.Now),
		OnRateLimited: func() { limited++ },
		Now:           clk.Now,
	}, nil)

	res := Get[thing](context.Background(), c, "/things/1", nil)
	require.False(t, res.OK())
	assert.Contains(t, res.Message(), "429")
	assert.Equal(t, 1, limited)

	status.Store(0)
	clk.Advance(59 * time.Second)
	res = Get[thing](context.Background(), c, "/things/1", nil)
	assert.False(t, res.OK())
	assert.Equal(t, "rate limited: retry in 1s", res.Message())

	res = Send[thing](context.Background(), c, http.MethodPost, "/things/1", nil)
	assert.False(t, res.OK(), "mutating calls are locked out too")
	assert.Equal(t, int32(1), hits.Load())

	clk.Advance(time.Second)
	res = Get[thing](context.Background(), c, "/things/1", nil)
	assert.True(t, res.OK(), res.Message())
	assert.Equal(t, int32(2), hits.Load())
}

func TestLockout_RetryAfterExtendsCooldown(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	l := NewLockout(60*time.Second, clk.Now)

	assert.Zero(t, l.Remaining())
	l.Trip(90 * time.Second)
	assert.Equal(t, 90*time.Second, l.Remaining())

	l.Trip(10 * time.Second)
	assert.Equal(t, 60*time.Second, l.Remaining())
}

func TestResult_Map(t *testing.T) {
	ok := Map(Success(1), func(v int) bool { return v == 1 })
	assert.True(t, ok.OK())
	assert.True(t, ok.Value())

	failed := Map(Failure[int]("boom"), func(v int) bool { return true })
	assert.False(t, failed.OK())
	assert.Equal(t, "boom", failed.Message())

	_, err := failed.Unwrap()
	assert.EqualError(t, err, "boom")
}
