package trigger

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

const DefaultStatsWindow = 100

// Stats is a snapshot of a trigger's update timings. Durations are in
// fractional milliseconds.
type Stats struct {
	Cycles           uint64  `json:"cycles"`
	ConsumerFailures uint64  `json:"consumerFailures"`
	LastMillis       float64 `json:"lastMillis"`
	AverageMillis    float64 `json:"averageMillis"`
	MaxMillis        float64 `json:"maxMillis"`
	Window           int     `json:"window"`
}

// statsRecorder keeps the most recent update durations in a ring of
// bounded size.
type statsRecorder struct {
	mu        sync.Mutex
	window    int
	durations deque.Deque[time.Duration]
	sum       time.Duration
	cycles    uint64
	failures  uint64
}

func newStatsRecorder(window int) *statsRecorder {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	return &statsRecorder{window: window}
}

func (s *statsRecorder) record(elapsed time.Duration, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.failures += uint64(failures)
	s.durations.PushBack(elapsed)
	s.sum += elapsed
	for s.durations.Len() > s.window {
		s.sum -= s.durations.PopFront()
	}
}

func (s *statsRecorder) addFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures += uint64(n)
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := Stats{
		Cycles:           s.cycles,
		ConsumerFailures: s.failures,
		Window:           s.durations.Len(),
	}
	if s.durations.Len() == 0 {
		return ret
	}
	var maxDuration time.Duration
	for i := 0; i < s.durations.Len(); i++ {
		maxDuration = max(maxDuration, s.durations.At(i))
	}
	ret.LastMillis = millis(s.durations.Back())
	ret.AverageMillis = millis(s.sum) / float64(s.durations.Len())
	ret.MaxMillis = millis(maxDuration)
	return ret
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
