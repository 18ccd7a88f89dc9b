package api

import "errors"

// Result is the outcome of an API call: either a success carrying a value
// or a failure carrying a human-readable message. API methods return a
// Result instead of an error so that every call is handled the same way.
type Result[T any] struct {
	value   T
	message string
	ok      bool
}

// Success wraps v as a successful result.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Failure builds a failed result with msg.
func Failure[T any](msg string) Result[T] {
	return Result[T]{message: msg}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.ok }

// Value returns the payload. It is the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Message returns the failure message, or "" on success.
func (r Result[T]) Message() string { return r.message }

// Unwrap converts the result into the usual Go (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.ok {
		return r.value, nil
	}
	return r.value, errors.New(r.message)
}

// Map transforms a successful value with fn. A failure passes through with
// its message unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Failure[U](r.message)
	}
	return Success(fn(r.value))
}
