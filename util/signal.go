package util

import (
	"context"
	"time"
)

// Signal is a single-slot, auto-resetting wake signal. Any number of
// goroutines may call Set; exactly one goroutine is expected to Wait.
// Sets that happen while a wake is already pending collapse into that
// one wake.
type Signal struct {
	notify chan struct{} // Buffered channel of size 1 holding the pending wake
}

// NewSignal creates a new Signal without a pending wake.
func NewSignal() *Signal {
	return &Signal{
		notify: make(chan struct{}, 1),
	}
}

// Set marks one pending wake. It never blocks.
func (s *Signal) Set() {
	select {
	case s.notify <- struct{}{}:
		// Wake is now pending.
	default:
		// A wake is already pending.
	}
}

// Wait blocks until a pending wake exists or timeout elapses. It
// returns true if it consumed a wake and false on timeout.
func (s *Signal) Wait(timeout time.Duration) bool {
	return s.WaitContext(context.Background(), timeout)
}

// WaitContext is like Wait but also returns false as soon as ctx is
// done. If a wake and cancellation race, either may win; callers must
// check ctx after a successful wait.
func (s *Signal) WaitContext(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.notify:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Reset discards a pending wake, if any.
func (s *Signal) Reset() {
	select {
	case <-s.notify:
	default:
	}
}

// Pending reports whether a wake is waiting to be consumed.
// This is a non-destructive check.
func (s *Signal) Pending() bool {
	return len(s.notify) > 0
}

// Channel returns the notification channel for use in select
// statements. Receiving from it consumes the pending wake.
func (s *Signal) Channel() <-chan struct{} {
	return s.notify
}
