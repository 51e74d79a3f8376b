package util

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSignal(t *testing.T) {
	s := NewSignal()
	assert.NotNil(t, s, "NewSignal should not return nil")
	assert.NotNil(t, s.notify, "notify channel should be initialized")
	assert.False(t, s.Pending(), "a new signal should not be pending")
}

func TestSignal_WaitTimesOut(t *testing.T) {
	s := NewSignal()
	start := time.Now()
	assert.False(t, s.Wait(20*time.Millisecond), "Wait should time out without a Set")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSignal_SetBeforeWait(t *testing.T) {
	s := NewSignal()
	s.Set()
	assert.True(t, s.Pending())
	assert.True(t, s.Wait(time.Second), "a Set before Wait must not be lost")
	assert.False(t, s.Pending(), "Wait should consume the wake")
}

func TestSignal_SetsCollapse(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Set()
	s.Set()
	assert.True(t, s.Wait(10*time.Millisecond))
	assert.False(t, s.Wait(10*time.Millisecond), "multiple Sets should produce a single wake")
}

func TestSignal_WakesBlockedWaiter(t *testing.T) {
	s := NewSignal()
	result := make(chan bool)
	go func() {
		result <- s.Wait(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	s.Set()

	select {
	case got := <-result:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestSignal_Reset(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Reset()
	assert.False(t, s.Pending())
	assert.False(t, s.Wait(10*time.Millisecond))

	// Reset on an empty signal is a no-op
	s.Reset()
	assert.False(t, s.Pending())
}

func TestSignal_WaitContextCanceled(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, s.WaitContext(ctx, time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "a canceled context should end the wait early")
}

func TestSignal_ConcurrentSet(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	const numGoroutines = 50

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set()
			}
		}()
	}
	wg.Wait()

	assert.True(t, s.Wait(10*time.Millisecond), "at least one wake must survive the burst")
	assert.False(t, s.Wait(10*time.Millisecond), "the burst should collapse into one wake")
}
