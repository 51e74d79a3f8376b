package device

import "lautenbacher.net/ledtrigger/led"

// DebugDevice writes nowhere. It hands every update to a sink function,
// which makes it useful for viewers, tests and logging.
type DebugDevice struct {
	*AbstractDevice
	sink func([]led.Led)
}

// NewDebugDevice creates a debug device with ledCount slots. A nil sink
// turns updates into no-ops.
func NewDebugDevice(uid string, ledCount int, sink func([]led.Led)) *DebugDevice {
	inst := &DebugDevice{sink: sink}
	inst.AbstractDevice = NewAbstractDevice(uid, Info{
		Type:   TypeDebug,
		Vendor: "ledtrigger",
		Model:  "Debug",
	}, ledCount, inst.forward)
	return inst
}

func (s *DebugDevice) forward(leds []led.Led) error {
	if s.sink != nil {
		s.sink(leds)
	}
	return nil
}
