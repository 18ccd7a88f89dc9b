package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/votestream/internal/metrics"
)

// EscalateAfter is the number of consecutive failed writes after which the
// persist-error callback fires.
const EscalateAfter = 3

var ErrPersistence = errors.New("checkpoint persistence failing")

// Tracker holds the in-memory resumption marker and mirrors it to disk.
//
// Advance updates memory synchronously and hands the write to a background
// goroutine, so frame dispatch never waits on the filesystem. Writes are
// coalesced: the writer always saves the latest marker.
type Tracker struct {
	path    string
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu             sync.Mutex
	marker         int64
	has            bool
	dirty          bool
	failures       int
	onPersistError func(error)

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	closed    bool
	kick      chan struct{}
	flush     chan chan struct{}
	stop      chan struct{}
	done      chan struct{}

	// writing is closed when a write that outlived IOTimeout finally
	// returns. Owned by the run goroutine.
	writing chan struct{}
}

// NewTracker creates a tracker backed by path. An empty path keeps the
// marker in memory only.
func NewTracker(path string, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		path:    path,
		logger:  logger,
		metrics: m,
		kick:    make(chan struct{}, 1),
		flush:   make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Path returns the backing file path.
func (t *Tracker) Path() string {
	return t.path
}

// OnPersistError registers fn to be called once every EscalateAfter
// consecutive write failures.
func (t *Tracker) OnPersistError(fn func(error)) {
	t.mu.Lock()
	t.onPersistError = fn
	t.mu.Unlock()
}

// Resolve picks the marker to present on connect: the override when given,
// otherwise the stored marker. A marker already observed by this process is
// kept when it is newer than the file, since the last write may lag by one
// frame.
func (t *Tracker) Resolve(ctx context.Context, override *int64) (int64, bool) {
	if override != nil {
		t.mu.Lock()
		t.marker, t.has = *override, true
		t.mu.Unlock()
		return *override, true
	}

	if t.path != "" {
		loaded, err := Load(ctx, t.path)
		switch {
		case err == nil:
			t.mu.Lock()
			if !t.has || loaded > t.marker {
				t.marker, t.has = loaded, true
			}
			t.mu.Unlock()
		case errors.Is(err, ErrNoMarker):
			t.logger.Debug("no stored checkpoint", zap.String("path", t.path))
		default:
			t.logger.Warn("ignoring unreadable checkpoint", zap.String("path", t.path), zap.Error(err))
		}
	}

	return t.Current()
}

// Current returns the in-memory marker.
func (t *Tracker) Current() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.marker, t.has
}

// Advance records ts as observed. The marker never moves backwards; the
// resulting value is returned and queued for persistence.
func (t *Tracker) Advance(ts int64) int64 {
	t.mu.Lock()
	if !t.has || ts > t.marker {
		t.marker, t.has = ts, true
	}
	t.dirty = true
	v := t.marker
	closed := t.closed
	t.mu.Unlock()

	if t.path == "" || closed {
		return v
	}

	t.startOnce.Do(func() {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
		go t.run()
	})

	select {
	case t.kick <- struct{}{}:
	default:
		// A write is already pending and will pick up the latest marker.
	}
	return v
}

// Flush blocks until every marker observed so far has been written or ctx
// is done.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	started, closed := t.started, t.closed
	t.mu.Unlock()
	if !started || closed {
		return nil
	}

	ack := make(chan struct{})
	select {
	case t.flush <- ack:
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending marker and stops the writer.
func (t *Tracker) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		started := t.started
		t.mu.Unlock()

		if !started {
			return
		}
		close(t.stop)
		select {
		case <-t.done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for checkpoint writer: %w", ctx.Err())
		}
	})
	return err
}

func (t *Tracker) run() {
	defer close(t.done)

	for {
		select {
		case <-t.stop:
			t.settle()
			t.saveLatest()
			return
		case <-t.kick:
			t.saveLatest()
		case <-t.writing:
			t.writing = nil
			t.saveLatest()
		case ack := <-t.flush:
			t.settle()
			t.saveLatest()
			close(ack)
		}
	}
}

// settle waits up to IOTimeout for an outstanding write to return.
func (t *Tracker) settle() {
	if t.writing == nil {
		return
	}
	select {
	case <-t.writing:
		t.writing = nil
	case <-time.After(IOTimeout):
	}
}

func (t *Tracker) saveLatest() {
	if t.writing != nil {
		// Retried once the outstanding write returns; dirty stays set.
		return
	}

	t.mu.Lock()
	v, has, dirty := t.marker, t.has, t.dirty
	t.dirty = false
	t.mu.Unlock()

	if !has || !dirty {
		return
	}

	finished := make(chan struct{})
	_, err := withTimeout(context.Background(), func() (struct{}, error) {
		defer close(finished)
		return struct{}{}, writeFile(t.path, v)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		select {
		case <-finished:
		default:
			t.writing = finished
			t.mu.Lock()
			t.dirty = true
			t.mu.Unlock()
		}
	}
	if err != nil {
		t.metrics.CheckpointFailure()

		t.mu.Lock()
		t.failures++
		n := t.failures
		fn := t.onPersistError
		t.mu.Unlock()

		t.logger.Warn("failed to persist checkpoint",
			zap.String("path", t.path),
			zap.Int64("marker", v),
			zap.Int("consecutiveFailures", n),
			zap.Error(err),
		)
		if fn != nil && n%EscalateAfter == 0 {
			fn(fmt.Errorf("%w: %d consecutive failures: %v", ErrPersistence, n, err))
		}
		return
	}

	t.mu.Lock()
	recovered := t.failures > 0
	t.failures = 0
	t.mu.Unlock()

	if recovered {
		t.logger.Info("checkpoint persistence recovered", zap.String("path", t.path))
	}
	t.logger.Debug("checkpoint saved", zap.Int64("marker", v))
}
