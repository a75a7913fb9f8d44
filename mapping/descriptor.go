// Package mapping translates raw device state into Xbox-shaped output
// through per-device mapping configurations.
package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ThreeDeeJay/padforge/hostinput"
)

// Kind selects which element of a RawState a descriptor reads.
type Kind int

const (
	KindNone Kind = iota
	KindAxis
	KindSlider
	KindButton
	KindPOV
)

// POVDir is the hat direction a POV descriptor tests.
type POVDir int

const (
	POVUp POVDir = iota
	POVRight
	POVDown
	POVLeft
)

// povAngle is the direction's centre in centidegrees.
func (d POVDir) povAngle() int32 {
	switch d {
	case POVRight:
		return 9000
	case POVDown:
		return 18000
	case POVLeft:
		return 27000
	}
	return 0
}

func (d POVDir) String() string {
	switch d {
	case POVRight:
		return "Right"
	case POVDown:
		return "Down"
	case POVLeft:
		return "Left"
	}
	return "Up"
}

// Descriptor is one binding: a reference to an element of a RawState
// plus the invert / half-axis modifiers. The zero value is the empty
// binding and always yields the neutral value.
type Descriptor struct {
	Invert bool
	Half   bool
	Kind   Kind
	Index  int
	Dir    POVDir
}

// IsEmpty reports whether the descriptor binds nothing.
func (d Descriptor) IsEmpty() bool { return d.Kind == KindNone }

// Parse reads the textual descriptor grammar:
//
//	descriptor := prefix? kind index (direction)?
//	prefix     := 'I' | 'H' | 'IH'
//	kind       := 'Axis' | 'Slider' | 'Button' | 'POV'
//	direction  := 'Up' | 'Down' | 'Left' | 'Right'   (POV only)
//
// An empty string is the empty binding.
func Parse(s string) (Descriptor, error) {
	var d Descriptor
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return d, nil
	}

	// The prefix may be fused to the kind ("IHAxis 2") or stand
	// alone ("IH Axis 2").
	tok := fields[0]
	for {
		switch {
		case strings.HasPrefix(tok, "IH"):
			d.Invert, d.Half = true, true
			tok = tok[2:]
		case strings.HasPrefix(tok, "I"):
			d.Invert = true
			tok = tok[1:]
			continue
		case strings.HasPrefix(tok, "H"):
			d.Half = true
			tok = tok[1:]
			continue
		}
		break
	}
	if tok == "" {
		fields = fields[1:]
		if len(fields) == 0 {
			return Descriptor{}, fmt.Errorf("mapping: descriptor %q: missing kind", s)
		}
		tok = fields[0]
	}

	switch tok {
	case "Axis":
		d.Kind = KindAxis
	case "Slider":
		d.Kind = KindSlider
	case "Button":
		d.Kind = KindButton
	case "POV":
		d.Kind = KindPOV
	default:
		return Descriptor{}, fmt.Errorf("mapping: descriptor %q: unknown kind %q", s, tok)
	}

	if len(fields) < 2 {
		return Descriptor{}, fmt.Errorf("mapping: descriptor %q: missing index", s)
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil || idx < 0 {
		return Descriptor{}, fmt.Errorf("mapping: descriptor %q: bad index %q", s, fields[1])
	}
	d.Index = idx

	if d.Kind == KindPOV {
		if len(fields) < 3 {
			return Descriptor{}, fmt.Errorf("mapping: descriptor %q: POV needs a direction", s)
		}
		switch fields[2] {
		case "Up":
			d.Dir = POVUp
		case "Down":
			d.Dir = POVDown
		case "Left":
			d.Dir = POVLeft
		case "Right":
			d.Dir = POVRight
		default:
			return Descriptor{}, fmt.Errorf("mapping: descriptor %q: bad direction %q", s, fields[2])
		}
		if len(fields) > 3 {
			return Descriptor{}, fmt.Errorf("mapping: descriptor %q: trailing tokens", s)
		}
	} else if len(fields) > 2 {
		return Descriptor{}, fmt.Errorf("mapping: descriptor %q: trailing tokens", s)
	}
	return d, nil
}

// String serialises the descriptor back to the grammar. Parsing the
// result yields an equal Descriptor.
func (d Descriptor) String() string {
	if d.IsEmpty() {
		return ""
	}
	var b strings.Builder
	if d.Invert {
		b.WriteByte('I')
	}
	if d.Half {
		b.WriteByte('H')
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	switch d.Kind {
	case KindAxis:
		b.WriteString("Axis")
	case KindSlider:
		b.WriteString("Slider")
	case KindButton:
		b.WriteString("Button")
	case KindPOV:
		b.WriteString("POV")
	}
	fmt.Fprintf(&b, " %d", d.Index)
	if d.Kind == KindPOV {
		b.WriteByte(' ')
		b.WriteString(d.Dir.String())
	}
	return b.String()
}

// povArc is the half-width of the acceptance arc around a direction,
// in centidegrees. Diagonals sit exactly on the boundary and count
// for both neighbours.
const povArc = 4500

// Value reads the descriptor's source element from st and applies the
// modifiers, yielding 0-65535. Half is applied before Invert.
func (d Descriptor) Value(st *hostinput.RawState) uint16 {
	var v uint16
	switch d.Kind {
	case KindNone:
		return 0
	case KindAxis:
		if d.Index < hostinput.MaxAxes {
			v = st.Axes[d.Index]
		}
	case KindSlider:
		if d.Index < hostinput.MaxSliders {
			v = st.Sliders[d.Index]
		}
	case KindButton:
		if d.Index < hostinput.MaxButtons && st.Buttons[d.Index] {
			v = 0xFFFF
		}
	case KindPOV:
		if d.Index < hostinput.MaxHats {
			if a := st.Hats[d.Index]; a >= 0 && angularDistance(a, d.Dir.povAngle()) <= povArc {
				v = 0xFFFF
			}
		}
	}
	if d.Half {
		w := int32(v)*2 - 0xFFFF
		if w < 0 {
			w = 0
		}
		v = uint16(w)
	}
	if d.Invert {
		v = 0xFFFF - v
	}
	return v
}

// angularDistance returns the minimal distance between two hat angles
// in centidegrees (0-18000).
func angularDistance(a, b int32) int32 {
	d := a - b
	if d < 0 {
		d = -d
	}
	d %= 36000
	if d > 18000 {
		d = 36000 - d
	}
	return d
}
