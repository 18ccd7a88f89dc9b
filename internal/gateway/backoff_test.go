package gateway

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// zeroSource makes every jitter draw zero.
type zeroSource struct{}

func (zeroSource) Int63() int64 { return 0 }
func (zeroSource) Seed(int64)   {}

func TestBackoff_Base(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second, zeroSource{})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 1500 * time.Millisecond},
		{3, 2250 * time.Millisecond},
		{4, 3375 * time.Millisecond},
		{7, 10 * time.Second},
		{100, 10 * time.Second},
		{5000, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Base(tt.attempt), "attempt %d", tt.attempt)
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "zero jitter, attempt %d", tt.attempt)
	}
}

func TestBackoff_DelayWithinBounds(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 20*time.Second, rand.NewSource(1))

	for attempt := 1; attempt <= 30; attempt++ {
		base := b.Base(attempt)
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.LessOrEqual(t, d, base+maxJitter)
			assert.LessOrEqual(t, d, 20*time.Second+maxJitter)
		}
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0, nil)
	assert.Equal(t, DefaultReconnectDelay, b.Base(1))
	assert.Equal(t, DefaultReconnectDelay, b.Base(10), "max below initial clamps to initial")
}
