package cache

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type countingRecorder struct {
	hits, misses, sets, invalidations int
}

func (r *countingRecorder) Hit()        { r.hits++ }
func (r *countingRecorder) Miss()       { r.misses++ }
func (r *countingRecorder) Set()        { r.sets++ }
func (r *countingRecorder) Invalidate() { r.invalidations++ }

func TestTTLCache_RoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := New[string](WithClock(clock.Now))

	c.Set("/bots/1", "bot-one", 5*time.Minute)

	v, ok := c.Get("/bots/1")
	require.True(t, ok)
	assert.Equal(t, "bot-one", v)

	clock.Advance(5*time.Minute - time.Nanosecond)
	_, ok = c.Get("/bots/1")
	assert.True(t, ok, "entry must be visible while now < expiry")

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("/bots/1")
	assert.False(t, ok, "entry must be gone once now == expiry")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")
}

func TestTTLCache_SetOverwrites(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := New[int](WithClock(clock.Now))

	c.Set("k", 1, time.Second)
	clock.Advance(900 * time.Millisecond)
	c.Set("k", 2, time.Second)
	clock.Advance(900 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCache_InvalidateAndClear(t *testing.T) {
	c := New[string]()

	assert.False(t, c.Invalidate("missing"))

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)

	assert.True(t, c.Invalidate("a"))
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTLCache_StatsAndRecorder(t *testing.T) {
	rec := &countingRecorder{}
	c := New[string](WithRecorder(rec))

	c.Get("x")
	c.Set("x", "v", time.Minute)
	c.Get("x")
	c.Invalidate("x")
	c.Invalidate("x")

	stats := c.Stats()
	assert.Equal(t, Stats{Hits: 1, Misses: 1, Sets: 1, Invalidations: 1}, stats)
	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 1, rec.misses)
	assert.Equal(t, 1, rec.sets)
	assert.Equal(t, 1, rec.invalidations)
}

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query url.Values
		want  string
	}{
		{"no query", "/bots/1", nil, "/bots/1"},
		{"empty query", "/bots/1", url.Values{}, "/bots/1"},
		{"empty value kept", "/bots", url.Values{"search": {""}}, "/bots?search="},
		{"name without values", "/bots", url.Values{"search": {}}, "/bots"},
		{"sorted", "/bots", url.Values{"offset": {"10"}, "limit": {"5"}}, "/bots?limit=5&offset=10"},
		{"escaped", "/bots", url.Values{"search": {"username: foo"}}, "/bots?search=username%3A+foo"},
		{"multi value order kept", "/x", url.Values{"f": {"b", "a"}}, "/x?f=b&f=a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.path, tt.query))
		})
	}
}

func TestKey_StableAcrossInsertionOrder(t *testing.T) {
	a := url.Values{}
	a.Set("sort", "points")
	a.Set("limit", "10")
	a.Set("fields", "id,username")

	b := url.Values{}
	b.Set("fields", "id,username")
	b.Set("limit", "10")
	b.Set("sort", "points")

	assert.Equal(t, Key("/bots", a), Key("/bots", b))
}
