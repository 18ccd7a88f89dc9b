package gateway

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	// backoffGrowth and maxJitter are fixed so many clients reconnecting at
	// once spread out the same way.
	backoffGrowth = 1.5
	maxJitter     = time.Second
)

// Backoff computes reconnection delays:
// min(initial * 1.5^(attempt-1), max) + uniform[0, 1s].
type Backoff struct {
	initial time.Duration
	max     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a Backoff. A nil src seeds from the clock.
func NewBackoff(initial, max time.Duration, src rand.Source) *Backoff {
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	if max < initial {
		max = initial
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Backoff{initial: initial, max: max, rng: rand.New(src)}
}

// Base returns the delay for attempt without jitter. Attempts start at 1.
func (b *Backoff) Base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.initial) * math.Pow(backoffGrowth, float64(attempt-1))
	if d >= float64(b.max) || math.IsInf(d, 0) {
		return b.max
	}
	return time.Duration(d)
}

// Delay returns Base(attempt) plus jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	b.mu.Lock()
	jitter := time.Duration(b.rng.Int63n(int64(maxJitter) + 1))
	b.mu.Unlock()
	return b.Base(attempt) + jitter
}
