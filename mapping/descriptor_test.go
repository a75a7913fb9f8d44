package mapping_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/mapping"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"",
		"Axis 0",
		"Axis 7",
		"Slider 1",
		"Button 0",
		"Button 127",
		"POV 0 Up",
		"POV 3 Right",
		"I Axis 2",
		"H Axis 2",
		"IH Axis 2",
		"I Button 4",
		"IH Slider 0",
		"I POV 1 Down",
	}
	for _, s := range tests {
		t.Run("descriptor "+s, func(t *testing.T) {
			d, err := mapping.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, d.String())

			again, err := mapping.Parse(d.String())
			require.NoError(t, err)
			assert.Equal(t, d, again)
		})
	}
}

func TestParseFusedPrefix(t *testing.T) {
	fused, err := mapping.Parse("IHAxis 2")
	require.NoError(t, err)
	spaced, err := mapping.Parse("IH Axis 2")
	require.NoError(t, err)
	assert.Equal(t, spaced, fused)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"Axis",
		"Axis x",
		"Axis -1",
		"Knob 2",
		"POV 0",
		"POV 0 Sideways",
		"Button 1 Up",
		"Axis 1 2",
	}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, err := mapping.Parse(s)
			assert.Error(t, err)
		})
	}
}

func rawWith(mutate func(*hostinput.RawState)) *hostinput.RawState {
	s := hostinput.NewRawState()
	mutate(&s)
	return &s
}

func TestDescriptorValue(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		state      *hostinput.RawState
		want       uint16
	}{
		{"empty binding is neutral", "", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0xffff }), 0},
		{"axis passthrough", "Axis 1", rawWith(func(s *hostinput.RawState) { s.Axes[1] = 0xc000 }), 0xc000},
		{"slider passthrough", "Slider 0", rawWith(func(s *hostinput.RawState) { s.Sliders[0] = 0x1000 }), 0x1000},
		{"button released", "Button 3", rawWith(func(s *hostinput.RawState) {}), 0},
		{"button pressed", "Button 3", rawWith(func(s *hostinput.RawState) { s.Buttons[3] = true }), 0xffff},
		{"invert axis", "I Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0 }), 0xffff},
		{"invert full axis", "I Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0xffff }), 0},
		{"half axis below center", "H Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0x4000 }), 0},
		{"half axis at center", "H Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0x8000 }), 1},
		{"half axis full", "H Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0xffff }), 0xffff},
		{"half then invert order", "IH Axis 0", rawWith(func(s *hostinput.RawState) { s.Axes[0] = 0 }), 0xffff},
		{"pov exact direction", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 0 }), 0xffff},
		{"pov centred", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = -1 }), 0},
		{"pov diagonal counts for both", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 4500 }), 0xffff},
		{"pov diagonal other neighbour", "POV 0 Right", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 4500 }), 0xffff},
		{"pov opposite", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 18000 }), 0},
		{"pov wraparound arc", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 31500 }), 0xffff},
		{"pov outside arc", "POV 0 Up", rawWith(func(s *hostinput.RawState) { s.Hats[0] = 27000 }), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := mapping.Parse(tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Value(tt.state))
		})
	}
}

// Without I the processed value never decreases as the raw value
// grows; with I it never increases.
func TestDescriptorMonotonicity(t *testing.T) {
	for _, descriptor := range []string{"Axis 0", "H Axis 0", "I Axis 0", "IH Axis 0"} {
		d, err := mapping.Parse(descriptor)
		require.NoError(t, err)

		var prev uint16
		first := true
		for raw := 0; raw <= 0xffff; raw += 0x111 {
			s := hostinput.NewRawState()
			s.Axes[0] = uint16(raw)
			v := d.Value(&s)
			if !first {
				if d.Invert {
					assert.LessOrEqual(t, v, prev, "%s at %#x", descriptor, raw)
				} else {
					assert.GreaterOrEqual(t, v, prev, "%s at %#x", descriptor, raw)
				}
			}
			prev = v
			first = false
		}
	}
}
