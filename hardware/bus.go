// Package hardware provides the SPI buses LED strip devices write to.
package hardware

import (
	"fmt"
	"strings"
)

// Bus sends raw frames to an LED strip.
type Bus interface {
	// Tx writes data to the bus. Implementations must be safe for use
	// by several devices sharing the bus.
	Tx(data []byte) error
	Close() error
}

// Options select and configure the SPI backend.
type Options struct {
	// "periph.io" or "rpio"
	Library   string
	Device    string
	Frequency int
}

// Open initialises the selected SPI library and returns a bus on it.
func Open(opts Options) (Bus, error) {
	switch strings.ToLower(opts.Library) {
	case "", "periph.io", "periph":
		return OpenPeriphBus(opts.Device, opts.Frequency)
	case "rpio", "go-rpio":
		return OpenRpioBus(opts.Frequency)
	default:
		return nil, fmt.Errorf("unknown SPI library: %s", opts.Library)
	}
}
