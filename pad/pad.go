// Package pad defines the normalised Xbox-360-shaped gamepad value the
// engine produces, plus the wire formats shared with the virtual bus.
package pad

import (
	"encoding/binary"
	"io"
)

// Button bitmasks (XInput compatible).
const (
	ButtonDPadUp    = 0x0001
	ButtonDPadDown  = 0x0002
	ButtonDPadLeft  = 0x0004
	ButtonDPadRight = 0x0008
	ButtonStart     = 0x0010
	ButtonBack      = 0x0020
	ButtonLThumb    = 0x0040 // Left stick button
	ButtonRThumb    = 0x0080 // Right stick button
	ButtonLShoulder = 0x0100 // Left bumper (LB)
	ButtonRShoulder = 0x0200 // Right bumper (RB)
	ButtonGuide     = 0x0400 // Xbox/Guide button (center logo)
	ButtonA         = 0x1000
	ButtonB         = 0x2000
	ButtonX         = 0x4000
	ButtonY         = 0x8000
)

// Gamepad is one combined controller value.
// Triggers are 0-255, thumb axes signed 16-bit.
type Gamepad struct {
	Buttons uint16
	LT, RT  uint8
	LX, LY  int16
	RX, RY  int16
}

// IsNeutral reports whether every field carries its rest value.
func (g Gamepad) IsNeutral() bool {
	return g == Gamepad{}
}

// BuildReport encodes the Gamepad into the 20-byte wired Xbox 360 USB
// input report.
// Layout (indices in the returned slice):
//
//	 0: 0x00              - Report ID
//	 1: 0x14              - Payload size (20 bytes)
//	 2: Buttons (low byte)
//	 3: Buttons (high byte)
//	 4: LT (0-255)
//	 5: RT (0-255)
//	 6-7: LX (little-endian int16)
//	 8-9: LY (little-endian int16)
//	10-11: RX (little-endian int16)
//	12-13: RY (little-endian int16)
//	14-19: Reserved / zero
func (g Gamepad) BuildReport() []byte {
	b := make([]byte, 20)
	b[0] = 0x00
	b[1] = 0x14
	binary.LittleEndian.PutUint16(b[2:4], g.Buttons)
	b[4] = g.LT
	b[5] = g.RT
	binary.LittleEndian.PutUint16(b[6:8], uint16(g.LX))
	binary.LittleEndian.PutUint16(b[8:10], uint16(g.LY))
	binary.LittleEndian.PutUint16(b[10:12], uint16(g.RX))
	binary.LittleEndian.PutUint16(b[12:14], uint16(g.RY))
	return b
}

// MarshalBinary encodes the Gamepad to 14 bytes.
func (g *Gamepad) MarshalBinary() ([]byte, error) {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint16(b[0:2], g.Buttons)
	b[2] = g.LT
	b[3] = g.RT
	binary.LittleEndian.PutUint16(b[4:6], uint16(g.LX))
	binary.LittleEndian.PutUint16(b[6:8], uint16(g.LY))
	binary.LittleEndian.PutUint16(b[8:10], uint16(g.RX))
	binary.LittleEndian.PutUint16(b[10:12], uint16(g.RY))
	return b, nil
}

// UnmarshalBinary decodes 14 bytes into the Gamepad.
func (g *Gamepad) UnmarshalBinary(data []byte) error {
	if len(data) < 14 {
		return io.ErrUnexpectedEOF
	}
	g.Buttons = binary.LittleEndian.Uint16(data[0:2])
	g.LT = data[2]
	g.RT = data[3]
	g.LX = int16(binary.LittleEndian.Uint16(data[4:6]))
	g.LY = int16(binary.LittleEndian.Uint16(data[6:8]))
	g.RX = int16(binary.LittleEndian.Uint16(data[8:10]))
	g.RY = int16(binary.LittleEndian.Uint16(data[10:12]))
	return nil
}

// ParseRumbleReport extracts the motor pair from a host->device output
// report if it is the wired controller's 8-byte rumble packet:
// [0]=ReportID(0x00), [1]=Len(0x08), [2]=Reserved, [3]=Left (large,
// low-frequency) motor 0-255, [4]=Right (small, high-frequency) motor
// 0-255, [5..7]=Reserved. Other outbound reports (LED control) use
// different IDs/lengths and are ignored.
func ParseRumbleReport(out []byte) (left, right uint8, ok bool) {
	if len(out) >= 8 && out[0] == 0x00 && out[1] == 0x08 {
		return out[3], out[4], true
	}
	return 0, 0, false
}
