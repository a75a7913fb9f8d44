package mapping

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/pad"
)

// pressThreshold is the processed-value level at which a button or
// d-pad output counts as pressed.
const pressThreshold = 32768

// Config is one mapping configuration: 21 descriptors, per-stick
// radial dead-zone parameters and force-feedback routing parameters.
// Configs are treated as immutable once handed to the engine; edits
// go through Clone so a running cycle never observes a half-written
// mapping.
type Config struct {
	Name string

	Bindings [OutputCount]Descriptor

	// Percent of the stick radius, 0-100.
	DeadZoneLeft      int
	AntiDeadZoneLeft  int
	DeadZoneRight     int
	AntiDeadZoneRight int

	// Force feedback: overall and per-motor gains in percent, motor
	// swap, and the preferred haptic effect family.
	ForceOverall   int
	ForceLeftGain  int
	ForceRightGain int
	ForceSwap      bool
	ForceEffect    hostinput.EffectKind
}

// NewConfig returns an empty mapping with full gains.
func NewConfig(name string) *Config {
	return &Config{
		Name:           name,
		ForceOverall:   100,
		ForceLeftGain:  100,
		ForceRightGain: 100,
	}
}

// Clone returns a deep copy; Descriptor is a value type so the array
// copy suffices.
func (c *Config) Clone() *Config {
	dup := *c
	return &dup
}

// Checksum names the config by its contents: the first 16 bytes of a
// blake2b-256 digest of the canonical serialisation. Two configs with equal fields share a
// checksum and are shared by reference.
func (c *Config) Checksum() string {
	var b strings.Builder
	for o := Output(0); o < OutputCount; o++ {
		b.WriteString(Outputs[o].Label)
		b.WriteByte('=')
		b.WriteString(c.Bindings[o].String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "dz=%d,%d,%d,%d\n", c.DeadZoneLeft, c.AntiDeadZoneLeft, c.DeadZoneRight, c.AntiDeadZoneRight)
	fmt.Fprintf(&b, "ff=%d,%d,%d,%t,%d\n", c.ForceOverall, c.ForceLeftGain, c.ForceRightGain, c.ForceSwap, int(c.ForceEffect))
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// SetBinding parses and installs a descriptor for one output.
// Unparseable descriptors are treated as the empty binding and the
// error is returned for the caller to surface.
func (c *Config) SetBinding(o Output, descriptor string) error {
	d, err := Parse(descriptor)
	if err != nil {
		c.Bindings[o] = Descriptor{}
		return err
	}
	c.Bindings[o] = d
	return nil
}

// Apply translates a raw snapshot into the Xbox output shape.
func (c *Config) Apply(st *hostinput.RawState, out *pad.Gamepad) {
	*out = pad.Gamepad{}

	for o := Output(0); o < OutputCount; o++ {
		info := &Outputs[o]
		d := c.Bindings[o]
		if d.IsEmpty() {
			continue
		}
		v := d.Value(st)
		switch info.Target {
		case TargetButton:
			if v >= pressThreshold {
				out.Buttons |= info.Mask
			}
		case TargetTrigger:
			b := uint8(uint32(v) * 255 / 65535)
			if o == OutLeftTrigger {
				out.LT = b
			} else {
				out.RT = b
			}
		case TargetStick:
			s := int16(int32(v) - 32768)
			switch o {
			case OutLeftStickX:
				out.LX = s
			case OutLeftStickY:
				out.LY = s
			case OutRightStickX:
				out.RX = s
			case OutRightStickY:
				out.RY = s
			}
		}
	}

	out.LX, out.LY = applyDeadZone(out.LX, out.LY, c.DeadZoneLeft, c.AntiDeadZoneLeft)
	out.RX, out.RY = applyDeadZone(out.RX, out.RY, c.DeadZoneRight, c.AntiDeadZoneRight)
}
