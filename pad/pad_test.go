package pad_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThreeDeeJay/padforge/pad"
)

func TestBuildReportLayout(t *testing.T) {
	g := pad.Gamepad{
		Buttons: pad.ButtonA | pad.ButtonDPadUp,
		LT:      0x40,
		RT:      0xff,
		LX:      0x1234,
		LY:      -32768,
		RX:      32767,
		RY:      -1,
	}
	b := g.BuildReport()

	assert.Len(t, b, 20)
	assert.Equal(t, uint8(0x00), b[0])
	assert.Equal(t, uint8(0x14), b[1])
	assert.Equal(t, uint8(0x01), b[2]) // DPadUp in low byte
	assert.Equal(t, uint8(0x10), b[3]) // A in high byte
	assert.Equal(t, uint8(0x40), b[4])
	assert.Equal(t, uint8(0xff), b[5])
	assert.Equal(t, []byte{0x34, 0x12}, b[6:8])
	assert.Equal(t, []byte{0x00, 0x80}, b[8:10])
	assert.Equal(t, []byte{0xff, 0x7f}, b[10:12])
	assert.Equal(t, []byte{0xff, 0xff}, b[12:14])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, b[14:20])
}

func TestGamepadBinaryRoundTrip(t *testing.T) {
	in := pad.Gamepad{Buttons: 0xbeef, LT: 12, RT: 200, LX: -5, LY: 5, RX: -30000, RY: 30000}
	data, err := in.MarshalBinary()
	assert.NoError(t, err)
	var out pad.Gamepad
	assert.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, out)
}

func TestParseRumbleReport(t *testing.T) {
	tests := []struct {
		name        string
		report      []byte
		wantOK      bool
		left, right uint8
	}{
		{name: "rumble packet", report: []byte{0x00, 0x08, 0x00, 0x7f, 0x20, 0, 0, 0}, wantOK: true, left: 0x7f, right: 0x20},
		{name: "led packet ignored", report: []byte{0x01, 0x03, 0x02, 0, 0, 0, 0, 0}, wantOK: false},
		{name: "short packet", report: []byte{0x00, 0x08, 0x00}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right, ok := pad.ParseRumbleReport(tt.report)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.left, left)
				assert.Equal(t, tt.right, right)
			}
		})
	}
}

func TestVibrationPacking(t *testing.T) {
	v := pad.Vibration{Left: 0xdead, Right: 0xbeef}
	assert.Equal(t, v, pad.UnpackVibration(v.Pack()))

	// Byte feedback stretches onto the full 16-bit range.
	assert.Equal(t, pad.Vibration{Left: 65535, Right: 0}, pad.FromFeedback(255, 0))
	assert.Equal(t, pad.Vibration{Left: 257, Right: 514}, pad.FromFeedback(1, 2))
}

func TestIsNeutral(t *testing.T) {
	assert.True(t, pad.Gamepad{}.IsNeutral())
	assert.False(t, pad.Gamepad{LT: 1}.IsNeutral())
}
