// Package events implements typed publish/subscribe topics.
package events

import "sync"

// Topic delivers values of type T to its subscribers in subscription order.
type Topic[T any] struct {
	name string

	mu   sync.RWMutex
	next uint64
	subs []subscription[T]
}

type subscription[T any] struct {
	id   uint64
	fn   func(T)
	once bool
}

// NewTopic creates a topic identified by name.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

// Name returns the event name of the topic.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers fn and returns a func that removes it.
// The returned func is safe to call more than once.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	return t.add(fn, false)
}

// Once registers fn for the next published value only.
func (t *Topic[T]) Once(fn func(T)) func() {
	return t.add(fn, true)
}

func (t *Topic[T]) add(fn func(T), once bool) func() {
	t.mu.Lock()
	t.next++
	id := t.next
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn, once: once})
	t.mu.Unlock()

	return func() { t.remove(id) }
}

func (t *Topic[T]) remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish calls every subscriber with v and reports how many were called.
// Subscribers run on the caller's goroutine; the subscriber list is
// snapshotted first, so a subscriber may (un)subscribe without deadlocking.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	snapshot := make([]subscription[T], len(t.subs))
	copy(snapshot, t.subs)
	t.mu.RUnlock()

	called := 0
	for _, s := range snapshot {
		if s.once && !t.remove(s.id) {
			// Another publisher already consumed it.
			continue
		}
		s.fn(v)
		called++
	}
	return called
}

// Len returns the number of live subscriptions.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Clear removes every subscription.
func (t *Topic[T]) Clear() {
	t.mu.Lock()
	t.subs = nil
	t.mu.Unlock()
}
