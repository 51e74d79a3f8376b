package trigger

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned by Start once the trigger has been disposed.
var ErrDisposed = errors.New("update trigger is disposed")

// Phases in which a consumer can fail.
const (
	PhaseStartup  = "startup"
	PhaseUpdate   = "update"
	PhaseShutdown = "shutdown"
)

// ConsumerError reports a failing consumer. It is handed to the error
// handler and logged; it never stops the update loop.
type ConsumerError struct {
	Trigger  string
	Consumer string
	Phase    string
	Err      error
	// Panic holds the recovered value if the consumer panicked.
	Panic any
}

func (e *ConsumerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("trigger %s: consumer %s panicked during %s: %v", e.Trigger, e.Consumer, e.Phase, e.Panic)
	}
	return fmt.Sprintf("trigger %s: consumer %s failed during %s: %v", e.Trigger, e.Consumer, e.Phase, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}
