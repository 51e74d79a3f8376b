package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatest_SendAndValue(t *testing.T) {
	l := NewLatest[int]()
	l.Send(123)
	assert.Equal(t, 123, l.Value(), "Value should be 123")
	assert.True(t, l.HasPending())

	<-l.Channel()
	assert.False(t, l.HasPending())
	assert.Equal(t, 123, l.Value(), "Value should survive consuming the notification")
}

func TestLatest_OnlyNewestIsKept(t *testing.T) {
	l := NewLatest[string]()
	l.Send("event1")
	l.Send("event2")
	l.Send("event3")

	select {
	case <-l.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-l.Channel():
		t.Fatal("channel should be empty")
	default:
	}
	assert.Equal(t, "event3", l.Value(), "Value should be the last event sent")
}

func TestLatest_UpdateAndSwap(t *testing.T) {
	l := NewLatest[map[string]int]()
	for _, key := range []string{"a", "b", "a"} {
		l.Update(func(m map[string]int) map[string]int {
			if m == nil {
				m = make(map[string]int)
			}
			m[key]++
			return m
		})
	}

	got := l.Swap()
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, got)
	assert.Nil(t, l.Value(), "Swap should leave the zero value behind")
}

func TestLatest_Concurrency(t *testing.T) {
	l := NewLatest[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			l.Send(i)
		}
		close(done)
	}()

	lastRead := -1
	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		for {
			select {
			case <-l.Channel():
				val := l.Value()
				if val < lastRead {
					t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
				}
				lastRead = val
			case <-done:
				return
			}
		}
	}()

	readerWg.Wait()
	assert.Equal(t, 999, l.Value(), "Final value should be 999")
}
