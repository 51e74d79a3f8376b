package device

import (
	"fmt"
	"sync"

	"lautenbacher.net/ledtrigger/led"
)

// Implementation of common and shared functionality between the
// concrete Device implementations
type AbstractDevice struct {
	uid  string
	info Info
	leds []led.Led
	// Guards getting and setting LED values
	ledsMutex sync.Mutex
	// Serializes calls of updateFunc
	updateMutex sync.Mutex
	// the method Update() forwards to. MUST be set by the concrete
	// implementation upon constructing a new instance
	updateFunc func(leds []led.Led) error
}

// Creates a new instance of AbstractDevice. The uid must be unique
func NewAbstractDevice(uid string, info Info, ledCount int, updateFunc func([]led.Led) error) *AbstractDevice {
	return &AbstractDevice{
		uid:        uid,
		info:       info,
		leds:       led.NewStrip(ledCount),
		updateFunc: updateFunc,
	}
}

// The UID of the device. Must be globally unique
func (s *AbstractDevice) UID() string {
	return s.uid
}

func (s *AbstractDevice) Info() Info {
	return s.info
}

func (s *AbstractDevice) LedCount() int {
	s.ledsMutex.Lock()
	defer s.ledsMutex.Unlock()
	return len(s.leds)
}

// Returns a slice with the current values of all the LEDs.
// Guarded by s.ledsMutex
func (s *AbstractDevice) Leds() []led.Led {
	s.ledsMutex.Lock()
	defer s.ledsMutex.Unlock()
	ret := make([]led.Led, len(s.leds))
	copy(ret, s.leds)
	return ret
}

// Sets the LEDs named by their Index. Either all of them are set or,
// if one index is out of range, none.
// Guarded by s.ledsMutex
func (s *AbstractDevice) SetLeds(leds []led.Led) error {
	s.ledsMutex.Lock()
	defer s.ledsMutex.Unlock()
	for _, l := range leds {
		if l.Index < 0 || l.Index >= len(s.leds) {
			return fmt.Errorf("device %s: %w: %d", s.uid, ErrLedIndex, l.Index)
		}
	}
	for _, l := range leds {
		s.leds[l.Index] = l
	}
	return nil
}

// Sets all LEDs of the device to the color of value.
func (s *AbstractDevice) Fill(value led.Led) {
	s.ledsMutex.Lock()
	defer s.ledsMutex.Unlock()
	for idx := range s.leds {
		value.Index = idx
		s.leds[idx] = value
	}
}

// Forwards leds to the concrete implementation.
func (s *AbstractDevice) Update(leds []led.Led) error {
	s.updateMutex.Lock()
	defer s.updateMutex.Unlock()
	if s.updateFunc == nil {
		return nil
	}
	return s.updateFunc(leds)
}

// Writes the current state of all LEDs.
func (s *AbstractDevice) Flush() error {
	return s.Update(s.Leds())
}
