// Package hostinput defines the contract to the OS input library and
// the normalised raw-state shape the pipeline reads from it.
package hostinput

// Fixed capacities of a RawState. Devices declaring fewer elements
// leave the remainder at the neutral value.
const (
	MaxAxes    = 8
	MaxSliders = 2
	MaxHats    = 4
	MaxButtons = 128
)

// AxisCenter is the rest value of an unsigned axis or slider.
const AxisCenter uint16 = 0x8000

// HatCentered marks a hat with no direction engaged.
const HatCentered int32 = -1

// RawState is a snapshot of one device's inputs after normalisation:
// axes and sliders unsigned 16-bit centred at 0x8000, hats in
// centidegrees (0-35999, -1 centred), buttons as booleans.
type RawState struct {
	Axes    [MaxAxes]uint16
	Sliders [MaxSliders]uint16
	Hats    [MaxHats]int32
	Buttons [MaxButtons]bool
}

// Reset returns every element to its neutral value.
func (s *RawState) Reset() {
	for i := range s.Axes {
		s.Axes[i] = AxisCenter
	}
	for i := range s.Sliders {
		s.Sliders[i] = AxisCenter
	}
	for i := range s.Hats {
		s.Hats[i] = HatCentered
	}
	for i := range s.Buttons {
		s.Buttons[i] = false
	}
}

// NewRawState returns a neutral snapshot.
func NewRawState() RawState {
	var s RawState
	s.Reset()
	return s
}

// Hat bitmask bits as reported by drivers (SDL convention).
const (
	HatBitUp    = 0x01
	HatBitRight = 0x02
	HatBitDown  = 0x04
	HatBitLeft  = 0x08
)

// HatAngle converts a driver hat bitmask to centidegrees. Opposing
// bits cancel each other, so Up|Down or Left|Right (or all four)
// read as centred.
func HatAngle(mask uint8) int32 {
	if mask&HatBitUp != 0 && mask&HatBitDown != 0 {
		mask &^= HatBitUp | HatBitDown
	}
	if mask&HatBitLeft != 0 && mask&HatBitRight != 0 {
		mask &^= HatBitLeft | HatBitRight
	}
	switch mask {
	case HatBitUp:
		return 0
	case HatBitUp | HatBitRight:
		return 4500
	case HatBitRight:
		return 9000
	case HatBitRight | HatBitDown:
		return 13500
	case HatBitDown:
		return 18000
	case HatBitDown | HatBitLeft:
		return 22500
	case HatBitLeft:
		return 27000
	case HatBitLeft | HatBitUp:
		return 31500
	}
	return HatCentered
}
