package device

import (
	"fmt"
	"math"
	"strings"

	"lautenbacher.net/ledtrigger/led"
)

// Encoder turns LED states into the byte stream of a strip controller.
// The returned slice is only valid until the next call.
type Encoder interface {
	Encode(leds []led.Led) []byte
	Name() string
}

// NewEncoder returns the encoder for ledType ("APA102" or "WS2801").
// colorCorrection holds per-channel factors for red, green and blue;
// brightness (0..31) is only used by APA102.
func NewEncoder(ledType string, ledCount int, colorCorrection []float64, brightness byte) (Encoder, error) {
	corr := [3]float64{1, 1, 1}
	if len(colorCorrection) != 0 {
		if len(colorCorrection) != 3 {
			return nil, fmt.Errorf("color correction needs 3 values, got %d", len(colorCorrection))
		}
		copy(corr[:], colorCorrection)
	}
	switch strings.ToUpper(ledType) {
	case "APA102":
		return newApa102Encoder(ledCount, corr, brightness), nil
	case "WS2801":
		return newWs2801Encoder(ledCount, corr), nil
	default:
		return nil, fmt.Errorf("unknown LED type: %s", ledType)
	}
}

func correct(value, factor float64) byte {
	return byte(math.Max(math.Min(value*factor, 255), 0))
}

type ws2801Encoder struct {
	colorCorrection [3]float64
	buffer          []byte
}

func newWs2801Encoder(ledCount int, colorCorrection [3]float64) *ws2801Encoder {
	// Pre-allocate buffer to the maximum possible size.
	return &ws2801Encoder{
		colorCorrection: colorCorrection,
		buffer:          make([]byte, 3*ledCount),
	}
}

func (d *ws2801Encoder) Name() string {
	return "WS2801"
}

func (d *ws2801Encoder) Encode(leds []led.Led) []byte {
	requiredSize := 3 * len(leds)
	if cap(d.buffer) < requiredSize {
		d.buffer = make([]byte, requiredSize)
	}
	display := d.buffer[:requiredSize]

	for idx := range leds {
		display[3*idx] = correct(leds[idx].Red, d.colorCorrection[0])
		display[(3*idx)+1] = correct(leds[idx].Green, d.colorCorrection[1])
		display[(3*idx)+2] = correct(leds[idx].Blue, d.colorCorrection[2])
	}
	return display
}

type apa102Encoder struct {
	colorCorrection [3]float64
	brightness      byte
	buffer          []byte
}

func newApa102Encoder(ledCount int, colorCorrection [3]float64, brightness byte) *apa102Encoder {
	return &apa102Encoder{
		colorCorrection: colorCorrection,
		brightness:      brightness & 0x1F,
		buffer:          make([]byte, apa102FrameSize(ledCount)),
	}
}

func apa102FrameSize(ledCount int) int {
	frameEndLength := (ledCount / 16) + 1
	return 4 + (4 * ledCount) + frameEndLength
}

func (d *apa102Encoder) Name() string {
	return "APA102"
}

func (d *apa102Encoder) Encode(leds []led.Led) []byte {
	requiredSize := apa102FrameSize(len(leds))
	if cap(d.buffer) < requiredSize {
		d.buffer = make([]byte, requiredSize)
	}
	display := d.buffer[:requiredSize]

	// Frame start: 4 zero bytes
	copy(display[0:4], []byte{0x00, 0x00, 0x00, 0x00})

	// Fixed general brightness
	brightness := d.brightness | 0xE0

	offset := 4
	for i := range leds {
		// protocol: brightness byte, blue, green, red
		display[offset] = brightness
		display[offset+1] = correct(leds[i].Blue, d.colorCorrection[2])
		display[offset+2] = correct(leds[i].Green, d.colorCorrection[1])
		display[offset+3] = correct(leds[i].Red, d.colorCorrection[0])
		offset += 4
	}

	// Frame end: fill the rest of the slice with 0xFF
	for i := offset; i < requiredSize; i++ {
		display[i] = 0xFF
	}
	return display
}
