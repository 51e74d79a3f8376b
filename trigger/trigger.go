// Package trigger decides when a refresh cycle runs and dispatches it to
// the registered consumers.
//
// An UpdateTrigger owns one long-running goroutine. The goroutine waits
// on an auto-reset signal with a short poll timeout; every time the
// signal fires it calls OnUpdate on all consumers, one after the other,
// and records how long that took. The poll timeout only exists so that
// the loop notices cancellation even when nobody asks for updates.
//
// # Lifecycle
//
//	Uninitialized -> Started <-> Stopped -> Disposed
//
// New starts the trigger right away unless WithoutAutoStart is given.
// Start and Stop are idempotent. Stop does not return before the loop
// goroutine has exited, so no consumer is called after Stop returns.
// Dispose stops the trigger for good; calling it again is a no-op and
// Start afterwards fails with ErrDisposed.
//
// # Consumers
//
// Consumers are called strictly sequentially. A failing consumer (error
// or panic) is reported through slog and the optional error handler;
// the loop and the remaining consumers carry on.
package trigger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	u "lautenbacher.net/ledtrigger/util"
)

// DefaultPollTimeout bounds the time between a cancellation request and
// the loop noticing it when no update is pending.
const DefaultPollTimeout = 100 * time.Millisecond

// State is the lifecycle state of an UpdateTrigger.
type State int32

const (
	// StateUninitialized is the state before the first Start.
	StateUninitialized State = iota
	// StateStarted means the loop goroutine is running.
	StateStarted
	// StateStopped means Stop has joined the loop; Start may be called again.
	StateStopped
	// StateDisposed is final.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Option configures an UpdateTrigger in New.
type Option func(*UpdateTrigger)

// WithName sets the name used in logs and consumer errors.
func WithName(name string) Option {
	return func(s *UpdateTrigger) {
		s.name = name
	}
}

// WithPollTimeout overrides DefaultPollTimeout. Non-positive values are
// ignored.
func WithPollTimeout(d time.Duration) Option {
	return func(s *UpdateTrigger) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// WithoutAutoStart keeps New from starting the loop, so consumers can be
// subscribed before the first OnStartup.
func WithoutAutoStart() Option {
	return func(s *UpdateTrigger) {
		s.autoStart = false
	}
}

// WithErrorHandler registers fn to be called for every consumer failure.
// fn runs on the goroutine that invoked the consumer.
func WithErrorHandler(fn func(*ConsumerError)) Option {
	return func(s *UpdateTrigger) {
		s.onError = fn
	}
}

// WithStatsWindow sets how many recent update durations are kept for
// Stats.
func WithStatsWindow(n int) Option {
	return func(s *UpdateTrigger) {
		s.stats = newStatsRecorder(n)
	}
}

// UpdateTrigger runs update cycles on a dedicated goroutine whenever
// TriggerUpdate is called.
type UpdateTrigger struct {
	name        string
	pollTimeout time.Duration
	autoStart   bool
	signal      *u.Signal
	consumers   consumerSet
	stats       *statsRecorder
	onError     func(*ConsumerError)
	logger      *slog.Logger

	// Guards cancel, done and hasStarted. Held for the whole of
	// Start, Stop and Dispose.
	lifecycleMutex sync.Mutex
	cancel         context.CancelFunc
	// closed by the loop goroutine on exit; nil while not running
	done       chan struct{}
	hasStarted bool
	disposed   atomic.Bool
	// Written under lifecycleMutex, read without it.
	state atomic.Int32

	// duration of the last update cycle in nanoseconds
	lastUpdate atomic.Int64
}

// New creates an UpdateTrigger and, unless WithoutAutoStart is given,
// starts it.
func New(opts ...Option) *UpdateTrigger {
	inst := &UpdateTrigger{
		name:        "trigger",
		pollTimeout: DefaultPollTimeout,
		autoStart:   true,
		signal:      u.NewSignal(),
		stats:       newStatsRecorder(DefaultStatsWindow),
	}
	for _, opt := range opts {
		opt(inst)
	}
	inst.logger = slog.Default().With("trigger", inst.name)

	if inst.autoStart {
		// Cannot fail: the trigger is not disposed yet.
		_ = inst.Start()
	}
	return inst
}

// Name returns the name given with WithName.
func (s *UpdateTrigger) Name() string {
	return s.name
}

// Subscribe registers c. The name identifies the consumer in logs and
// errors. Subscribing while the trigger runs is allowed; c sees its
// first OnUpdate with the next cycle but OnStartup only on the next
// Start.
func (s *UpdateTrigger) Subscribe(name string, c Consumer) SubscriptionID {
	return s.consumers.add(name, c)
}

// Unsubscribe removes the registration with the given id. It reports
// whether the id was found.
func (s *UpdateTrigger) Unsubscribe(id SubscriptionID) bool {
	return s.consumers.remove(id)
}

// ConsumerCount returns the number of registered consumers.
func (s *UpdateTrigger) ConsumerCount() int {
	return s.consumers.len()
}

// Start spawns the update loop. It is a no-op if the loop is running
// and fails with ErrDisposed after Dispose. A wake requested while the
// trigger was stopped is discarded; one requested before the very
// first Start is kept.
func (s *UpdateTrigger) Start() error {
	s.lifecycleMutex.Lock()
	defer s.lifecycleMutex.Unlock()

	if s.disposed.Load() {
		return ErrDisposed
	}
	if s.done != nil {
		return nil
	}
	if s.hasStarted {
		s.signal.Reset()
	}
	s.hasStarted = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state.Store(int32(StateStarted))
	go s.updateLoop(ctx, done)

	s.logger.Debug("Update trigger started", "pollTimeout", s.pollTimeout)
	return nil
}

// Stop cancels the update loop and waits until it has exited. After
// the loop is gone, consumers implementing Shutdowner are notified.
// Stop is a no-op if the trigger is not running. It must not be called
// from inside a consumer of this trigger.
func (s *UpdateTrigger) Stop() {
	s.lifecycleMutex.Lock()
	defer s.lifecycleMutex.Unlock()
	s.stopLocked()
}

func (s *UpdateTrigger) stopLocked() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.state.Store(int32(StateStopped))

	s.notifyShutdown()
	s.logger.Debug("Update trigger stopped")
}

// Dispose stops the trigger permanently. It may be called any number of
// times, also on a trigger that was never started.
func (s *UpdateTrigger) Dispose() {
	s.lifecycleMutex.Lock()
	defer s.lifecycleMutex.Unlock()

	if s.disposed.Load() {
		return
	}
	s.stopLocked()
	s.disposed.Store(true)
	s.state.Store(int32(StateDisposed))
	s.signal.Reset()
	s.logger.Debug("Update trigger disposed")
}

// Close disposes the trigger. It always returns nil and exists so the
// trigger can be used as an io.Closer.
func (s *UpdateTrigger) Close() error {
	s.Dispose()
	return nil
}

// TriggerUpdate requests an update cycle. It never blocks and may be
// called from any goroutine at any time. Requests issued while a cycle
// is pending are merged into that cycle. After Dispose it does nothing.
func (s *UpdateTrigger) TriggerUpdate() {
	if s.disposed.Load() {
		return
	}
	s.signal.Set()
}

// State returns the current lifecycle state. It never blocks, so
// consumers may call it from their callbacks. While Stop waits for the
// loop to exit the state is still StateStarted.
func (s *UpdateTrigger) State() State {
	return State(s.state.Load())
}

// LastUpdateTime returns the duration of the most recent update cycle
// in fractional milliseconds, or 0 before the first cycle completed.
func (s *UpdateTrigger) LastUpdateTime() float64 {
	return millis(s.LastUpdateDuration())
}

// LastUpdateDuration is LastUpdateTime as a time.Duration.
func (s *UpdateTrigger) LastUpdateDuration() time.Duration {
	return time.Duration(s.lastUpdate.Load())
}

// Stats returns a snapshot of the recorded update timings.
func (s *UpdateTrigger) Stats() Stats {
	return s.stats.snapshot()
}

func (s *UpdateTrigger) updateLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.notifyStartup()

	for ctx.Err() == nil {
		if !s.signal.WaitContext(ctx, s.pollTimeout) {
			continue
		}
		// A wake that raced with cancellation is dropped.
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		failures := s.notifyUpdate()
		elapsed := time.Since(start)

		s.lastUpdate.Store(int64(elapsed))
		s.stats.record(elapsed, failures)
	}
}

func (s *UpdateTrigger) notifyStartup() {
	failures := 0
	for _, sub := range s.consumers.snapshot() {
		if cerr := invoke(s.name, sub, PhaseStartup, func() error {
			sub.consumer.OnStartup()
			return nil
		}); cerr != nil {
			s.report(cerr)
			failures++
		}
	}
	if failures > 0 {
		s.stats.addFailures(failures)
	}
}

func (s *UpdateTrigger) notifyUpdate() int {
	failures := 0
	for _, sub := range s.consumers.snapshot() {
		if cerr := invoke(s.name, sub, PhaseUpdate, sub.consumer.OnUpdate); cerr != nil {
			s.report(cerr)
			failures++
		}
	}
	return failures
}

func (s *UpdateTrigger) notifyShutdown() {
	failures := 0
	for _, sub := range s.consumers.snapshot() {
		sd, ok := sub.consumer.(Shutdowner)
		if !ok {
			continue
		}
		if cerr := invoke(s.name, sub, PhaseShutdown, func() error {
			sd.OnShutdown()
			return nil
		}); cerr != nil {
			s.report(cerr)
			failures++
		}
	}
	if failures > 0 {
		s.stats.addFailures(failures)
	}
}

func (s *UpdateTrigger) report(cerr *ConsumerError) {
	s.logger.Error("Update consumer failed", "consumer", cerr.Consumer, "phase", cerr.Phase, "error", cerr.Err)
	if s.onError != nil {
		s.onError(cerr)
	}
}
