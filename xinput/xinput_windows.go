//go:build windows

package xinput

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// xinputGamepad / xinputState mirror XINPUT_GAMEPAD / XINPUT_STATE.
type xinputGamepad struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

type xinputState struct {
	PacketNumber uint32
	Gamepad      xinputGamepad
}

type xinputVibration struct {
	LeftMotorSpeed  uint16
	RightMotorSpeed uint16
}

type winSource struct {
	getState *windows.LazyProc
	setState *windows.LazyProc
}

// NewSource binds the newest available xinput DLL.
func NewSource() (Source, error) {
	for _, name := range []string{"xinput1_4.dll", "xinput1_3.dll", "xinput9_1_0.dll"} {
		dll := windows.NewLazySystemDLL(name)
		if err := dll.Load(); err != nil {
			continue
		}
		return &winSource{
			getState: dll.NewProc("XInputGetState"),
			setState: dll.NewProc("XInputSetState"),
		}, nil
	}
	return nil, fmt.Errorf("xinput: no usable DLL: %w", ErrUnavailable)
}

const errorSuccess = 0

func (s *winSource) Probe(slot int) bool {
	var st xinputState
	r, _, _ := s.getState.Call(uintptr(slot), uintptr(unsafe.Pointer(&st)))
	return r == errorSuccess
}

func (s *winSource) Read(slot int, dst *State) error {
	var st xinputState
	r, _, _ := s.getState.Call(uintptr(slot), uintptr(unsafe.Pointer(&st)))
	if r != errorSuccess {
		return ErrUnavailable
	}
	dst.Buttons = st.Gamepad.Buttons
	dst.LT = st.Gamepad.LeftTrigger
	dst.RT = st.Gamepad.RightTrigger
	dst.LX = st.Gamepad.ThumbLX
	dst.LY = st.Gamepad.ThumbLY
	dst.RX = st.Gamepad.ThumbRX
	dst.RY = st.Gamepad.ThumbRY
	dst.Packet = st.PacketNumber
	return nil
}

func (s *winSource) SetVibration(slot int, left, right uint16) error {
	vib := xinputVibration{LeftMotorSpeed: left, RightMotorSpeed: right}
	r, _, _ := s.setState.Call(uintptr(slot), uintptr(unsafe.Pointer(&vib)))
	if r != errorSuccess {
		return fmt.Errorf("xinput: set vibration on slot %d failed (%d)", slot, r)
	}
	return nil
}

func (s *winSource) ConnectedMask() uint8 {
	var mask uint8
	for slot := 0; slot < MaxSlots; slot++ {
		if s.Probe(slot) {
			mask |= 1 << slot
		}
	}
	return mask
}
