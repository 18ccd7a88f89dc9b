package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int64
		wantErr bool
		errIs   error
	}{
		{name: "valid", content: `{"lastMessageTimestamp": 1700000000000}`, want: 1700000000000},
		{name: "missing field", content: `{}`, wantErr: true, errIs: ErrNoMarker},
		{name: "corrupt", content: `{"lastMessageTimestamp": "yesterday"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			got, err := Load(context.Background(), path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errIs != nil {
					assert.ErrorIs(t, err, tt.errIs)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNoMarker)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")

	require.NoError(t, Save(context.Background(), path, 42))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastMessageTimestamp": 42}`, string(raw))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp file must be renamed away")
}

func TestSave_ConcurrentWritersUseOwnTempFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	var wg sync.WaitGroup
	for i := int64(1); i <= 16; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			assert.NoError(t, Save(context.Background(), path, v))
		}(i)
	}
	wg.Wait()

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, got >= 1 && got <= 16)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestTracker_ResolvePrefersOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, Save(context.Background(), path, 100))

	tr := NewTracker(path, zap.NewNop(), nil)
	override := int64(5)

	got, ok := tr.Resolve(context.Background(), &override)
	assert.True(t, ok)
	assert.Equal(t, int64(5), got)
}

func TestTracker_ResolveFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lastMessageTimestamp": 1700000000000}`), 0600))

	tr := NewTracker(path, nil, nil)
	got, ok := tr.Resolve(context.Background(), nil)

	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), got)
}

func TestTracker_ResolveNothing(t *testing.T) {
	tr := NewTracker(filepath.Join(t.TempDir(), "cp.json"), nil, nil)

	_, ok := tr.Resolve(context.Background(), nil)
	assert.False(t, ok)

	corrupt := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json"), 0600))
	_, ok = NewTracker(corrupt, nil, nil).Resolve(context.Background(), nil)
	assert.False(t, ok, "corrupt file means no marker")
}

func TestTracker_AdvanceNeverRegresses(t *testing.T) {
	tr := NewTracker("", nil, nil)

	assert.Equal(t, int64(10), tr.Advance(10))
	assert.Equal(t, int64(20), tr.Advance(20))
	assert.Equal(t, int64(20), tr.Advance(15))

	got, ok := tr.Current()
	assert.True(t, ok)
	assert.Equal(t, int64(20), got)
}

func TestTracker_PersistsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	tr := NewTracker(path, zap.NewNop(), nil)

	for ts := int64(1); ts <= 50; ts++ {
		tr.Advance(ts)
	}
	require.NoError(t, tr.Flush(context.Background()))

	got, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)

	tr.Advance(51)
	require.NoError(t, tr.Close(context.Background()))

	got, err = Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(51), got, "close writes the pending marker")
}

func TestTracker_EscalatesRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes every rename fail.
	path := filepath.Join(dir, "cp.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0750))

	tr := NewTracker(path, zap.NewNop(), nil)
	var mu sync.Mutex
	var escalations []error
	tr.OnPersistError(func(err error) {
		mu.Lock()
		escalations = append(escalations, err)
		mu.Unlock()
	})

	for i := int64(1); i <= EscalateAfter; i++ {
		tr.Advance(i)
		require.NoError(t, tr.Flush(context.Background()))
	}
	require.NoError(t, tr.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, escalations, 1)
	assert.True(t, errors.Is(escalations[0], ErrPersistence))

	v, ok := tr.Current()
	assert.True(t, ok, "memory keeps advancing when disk fails")
	assert.Equal(t, int64(EscalateAfter), v)
}

func TestTracker_HoldsWritesWhileOneIsOutstanding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	tr := NewTracker(path, zap.NewNop(), nil)

	// Stands in for a write that outlived IOTimeout.
	stuck := make(chan struct{})
	tr.writing = stuck

	tr.Advance(5)
	assert.Never(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 100*time.Millisecond, 10*time.Millisecond, "no new write while one is outstanding")

	tr.Advance(6)
	close(stuck)

	require.Eventually(t, func() bool {
		got, err := Load(context.Background(), path)
		return err == nil && got == 6
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, tr.Close(context.Background()))
}
