// Package led holds the LED value type passed between triggers,
// device groups and devices.
package led

import (
	"fmt"
	"math"
)

// Led is the state of a single LED slot on a device. Index is the
// position of the slot on its device; color components range 0..255.
type Led struct {
	Index int     `json:"index"`
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// True if all color components are zero, false otherwise
func (s Led) IsEmpty() bool {
	return s.Red == 0 && s.Green == 0 && s.Blue == 0
}

// Return a Led with per component the max value of the caller and the
// in parameter. The index of the caller is kept.
func (s Led) Max(in Led) Led {
	in.Index = s.Index
	if s.Red > in.Red {
		in.Red = s.Red
	}
	if s.Green > in.Green {
		in.Green = s.Green
	}
	if s.Blue > in.Blue {
		in.Blue = s.Blue
	}
	return in
}

// HexColor returns the color scaled so its brightest component is 255,
// formatted as #rrggbb. Useful for displays that show hue, not
// brightness.
func (s Led) HexColor() string {
	maxColor := math.Max(s.Red, math.Max(s.Green, s.Blue))
	if maxColor <= 0 {
		return "#000000"
	}
	factor := 255 / maxColor
	red := math.Min(s.Red*factor, 255)
	green := math.Min(s.Green*factor, 255)
	blue := math.Min(s.Blue*factor, 255)

	const epsilon = 1e-9

	return fmt.Sprintf("#%02x%02x%02x", byte(math.Round(red+epsilon)), byte(math.Round(green+epsilon)), byte(math.Round(blue+epsilon)))
}

// Brightness is the mean of the three color components.
func (s Led) Brightness() float64 {
	return (s.Red + s.Green + s.Blue) / 3.0
}

// NewStrip returns count empty LEDs indexed 0..count-1.
func NewStrip(count int) []Led {
	leds := make([]Led, count)
	for i := range leds {
		leds[i].Index = i
	}
	return leds
}
