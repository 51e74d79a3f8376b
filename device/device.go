// Package device contains the update consumers of this project: LED
// devices and the groups that bind them to an update trigger.
package device

import (
	"errors"

	"lautenbacher.net/ledtrigger/led"
)

// Device types
const (
	TypeDebug     = "debug"
	TypeLedStripe = "ledstripe"
)

var (
	ErrLedIndex        = errors.New("led index out of range")
	ErrDuplicateDevice = errors.New("device already in group")
)

// Info describes a device.
type Info struct {
	Type   string `json:"type"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

// Device is a set of LED slots that can be written to hardware.
type Device interface {
	UID() string
	Info() Info
	// Leds returns a copy of the current LED slots.
	Leds() []led.Led
	// SetLeds stores the given LEDs in the slots named by their Index.
	SetLeds(leds []led.Led) error
	// Update applies the given LEDs to the hardware. It is called
	// sequentially, never concurrently, by the group's trigger.
	Update(leds []led.Led) error
}
