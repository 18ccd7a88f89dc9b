// Package checkpoint persists the gateway resumption marker.
//
// Storage is a single JSON file {"lastMessageTimestamp": <int>}. Every read
// and write is bounded by IOTimeout and is best effort: a missing or corrupt
// file means "no marker", never a fatal condition.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IOTimeout bounds every file read and write.
const IOTimeout = time.Second

var ErrNoMarker = errors.New("no checkpoint marker")

type fileFormat struct {
	LastMessageTimestamp *int64 `json:"lastMessageTimestamp"`
}

// Load reads the marker stored at path. It returns ErrNoMarker when the file
// is absent or holds no marker, and another error when the read failed,
// timed out or the content is malformed. Callers treat every error as
// "no marker".
func Load(ctx context.Context, path string) (int64, error) {
	return withTimeout(ctx, func() (int64, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return 0, ErrNoMarker
			}
			return 0, fmt.Errorf("reading checkpoint: %w", err)
		}

		var f fileFormat
		if err := json.Unmarshal(data, &f); err != nil {
			return 0, fmt.Errorf("decoding checkpoint: %w", err)
		}
		if f.LastMessageTimestamp == nil {
			return 0, ErrNoMarker
		}
		return *f.LastMessageTimestamp, nil
	})
}

// Save writes marker to path through a temp file and an atomic rename.
// Each call uses its own temp file, so a write abandoned on timeout cannot
// clobber a later one before it is renamed.
func Save(ctx context.Context, path string, marker int64) error {
	_, err := withTimeout(ctx, func() (struct{}, error) {
		return struct{}{}, writeFile(path, marker)
	})
	return err
}

func writeFile(path string, marker int64) error {
	data, err := json.Marshal(fileFormat{LastMessageTimestamp: &marker})
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// withTimeout runs fn on its own goroutine so a stuck filesystem call cannot
// hold the caller past IOTimeout. The goroutine is left to finish on its own.
func withTimeout[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, IOTimeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("checkpoint io: %w", ctx.Err())
	}
}
