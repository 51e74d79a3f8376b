package trigger

import (
	"fmt"
	"slices"
	"sync"
)

// Consumer is notified by an UpdateTrigger. All calls for one trigger
// happen sequentially on the trigger's loop goroutine; they never
// overlap. A consumer must not call Stop or Dispose on the trigger that
// notifies it, as those wait for the loop to exit.
type Consumer interface {
	// OnStartup is called once per Start, before the first wait.
	OnStartup()
	// OnUpdate performs one refresh. A returned error is reported and
	// does not affect other consumers.
	OnUpdate() error
}

// Shutdowner is implemented by consumers that want to be told when the
// loop has stopped. OnShutdown runs on the goroutine calling Stop or
// Dispose, after the loop has exited.
type Shutdowner interface {
	OnShutdown()
}

// ConsumerFunc adapts a plain update function to the Consumer interface.
type ConsumerFunc func() error

func (f ConsumerFunc) OnStartup() {}

func (f ConsumerFunc) OnUpdate() error {
	return f()
}

// SubscriptionID identifies one registration on a trigger.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	name     string
	consumer Consumer
}

// consumerSet is the observer list of a trigger. The loop iterates over
// snapshots, so (un)subscribing during a dispatch is safe and takes
// effect with the next one.
type consumerSet struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription
}

func (s *consumerSet) add(name string, c Consumer) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if name == "" {
		name = fmt.Sprintf("consumer-%d", s.nextID)
	}
	s.subs = append(s.subs, subscription{id: s.nextID, name: name, consumer: c})
	return s.nextID
}

func (s *consumerSet) remove(id SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	if idx < 0 {
		return false
	}
	s.subs = slices.Delete(s.subs, idx, idx+1)
	return true
}

func (s *consumerSet) snapshot() []subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.subs)
}

func (s *consumerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// invoke runs fn for sub and converts both returned errors and panics
// into a *ConsumerError.
func invoke(trigger string, sub subscription, phase string, fn func() error) (cerr *ConsumerError) {
	defer func() {
		if r := recover(); r != nil {
			cerr = &ConsumerError{
				Trigger:  trigger,
				Consumer: sub.name,
				Phase:    phase,
				Err:      fmt.Errorf("panic: %v", r),
				Panic:    r,
			}
		}
	}()
	if err := fn(); err != nil {
		return &ConsumerError{Trigger: trigger, Consumer: sub.name, Phase: phase, Err: err}
	}
	return nil
}
