package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Triggerable is anything that accepts update requests.
type Triggerable interface {
	TriggerUpdate()
}

// Ticker requests updates from a target at a fixed interval. An
// interval of 0 keeps the goroutine alive but sends no requests, which
// leaves the target to manual triggering.
type Ticker struct {
	target Triggerable

	// Guards interval, cancel and running
	mu         sync.Mutex
	interval   time.Duration
	intervalCh chan time.Duration
	cancel     context.CancelFunc
	running    bool
	wg         sync.WaitGroup
}

// NewTicker creates a stopped Ticker for target.
func NewTicker(target Triggerable, interval time.Duration) *Ticker {
	return &Ticker{
		target:     target,
		interval:   max(interval, 0),
		intervalCh: make(chan time.Duration, 1),
	}
}

// RateToInterval converts an update rate in Hz to a tick interval. Rates
// <= 0 yield 0, meaning no periodic updates.
func RateToInterval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

// Start begins generating update requests. It is a no-op if already
// running.
func (s *Ticker) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	// drop a stale interval change from a previous run
	select {
	case <-s.intervalCh:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(ctx, s.interval)
}

// Stop ends the ticker goroutine and waits for it to exit.
func (s *Ticker) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// SetInterval changes the tick interval. It takes effect immediately if
// the ticker runs, otherwise on the next Start.
func (s *Ticker) SetInterval(d time.Duration) {
	d = max(d, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	if d == s.interval {
		return
	}
	s.interval = d
	if !s.running {
		return
	}
	// Replace a change the goroutine has not picked up yet.
	select {
	case <-s.intervalCh:
	default:
	}
	s.intervalCh <- d
}

// Interval returns the configured tick interval.
func (s *Ticker) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Ticker) run(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	var ticker *time.Ticker
	var tick <-chan time.Time
	reset := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	reset(interval)
	defer reset(0)

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.intervalCh:
			slog.Debug("Ticker interval changed", "interval", d)
			reset(d)
		case <-tick:
			s.target.TriggerUpdate()
		}
	}
}
