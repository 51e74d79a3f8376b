package util

import "sync"

// Latest holds a single, most recent value and wakes one reader when it
// changes. Values sent while the reader is busy overwrite each other;
// only the newest one is ever observed.
type Latest[T any] struct {
	mu     sync.Mutex // Protects access to 'value'
	value  T
	signal *Signal
}

// NewLatest creates a new Latest instance.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{
		signal: NewSignal(),
	}
}

// Send stores value as the latest one. It is non-blocking.
func (l *Latest[T]) Send(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = value
	l.signal.Set()
}

// Update applies fn to the current value under the lock and signals
// the reader. Use it when the value is a container that must be merged
// rather than replaced.
func (l *Latest[T]) Update(fn func(T) T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = fn(l.value)
	l.signal.Set()
}

// Channel returns the notification channel for use in select statements.
func (l *Latest[T]) Channel() <-chan struct{} {
	return l.signal.Channel()
}

// Value returns the current latest value.
func (l *Latest[T]) Value() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Swap returns the current value and replaces it with the zero value.
func (l *Latest[T]) Swap() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	ret := l.value
	l.value = zero
	return ret
}

// HasPending checks if a notification is waiting to be consumed.
func (l *Latest[T]) HasPending() bool {
	return l.signal.Pending()
}
