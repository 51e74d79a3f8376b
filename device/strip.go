package device

import (
	"fmt"

	"lautenbacher.net/ledtrigger/hardware"
	"lautenbacher.net/ledtrigger/led"
)

// StripDevice is an addressable LED strip attached to an SPI bus.
type StripDevice struct {
	*AbstractDevice
	encoder Encoder
	bus     hardware.Bus
}

func NewStripDevice(uid string, ledCount int, encoder Encoder, bus hardware.Bus) *StripDevice {
	inst := &StripDevice{
		encoder: encoder,
		bus:     bus,
	}
	inst.AbstractDevice = NewAbstractDevice(uid, Info{
		Type:   TypeLedStripe,
		Vendor: "generic",
		Model:  encoder.Name(),
	}, ledCount, inst.write)
	return inst
}

func (s *StripDevice) write(leds []led.Led) error {
	if err := s.bus.Tx(s.encoder.Encode(leds)); err != nil {
		return fmt.Errorf("device %s: %w", s.uid, err)
	}
	return nil
}
