package engine

import (
	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/xinput"
)

// read is stage 2: sample every online device into its RawState and
// push queued vibration out to the hardware. One device's failure
// never disturbs the others.
func (e *Engine) read() {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	for _, d := range e.devices {
		if !d.online {
			continue
		}
		var err error
		if d.isNative() {
			err = e.readNative(d)
		} else {
			err = e.readJoystick(d)
		}
		if err != nil {
			e.reportError(StageRead, d.instanceID, "sample failed", err)
			continue
		}
		if d.state != d.prevState {
			d.prevState = d.state
			e.events.emitStateChanged(d.instanceID)
		}
		e.routeForceFeedback(d)
	}
}

// readJoystick converts a driver sample into the normalised shape:
// signed axes shifted to unsigned, overflow axes into the sliders,
// hat bitmasks to centidegrees.
func (e *Engine) readJoystick(d *device) error {
	if d.handle == nil {
		return hostinput.ErrDeviceGone
	}
	if err := d.handle.Sample(&d.sample); err != nil {
		return err
	}
	s := &d.sample

	d.state.Reset()
	axes := d.caps.Axes
	if axes > s.NumAxes {
		axes = s.NumAxes
	}
	for i := 0; i < axes; i++ {
		d.state.Axes[i] = uint16(int32(s.Axes[i]) + 32768)
	}
	sliders := d.caps.Sliders
	for i := 0; i < sliders && axes+i < s.NumAxes; i++ {
		d.state.Sliders[i] = uint16(int32(s.Axes[axes+i]) + 32768)
	}
	hats := d.caps.Hats
	if hats > s.NumHats {
		hats = s.NumHats
	}
	for i := 0; i < hats; i++ {
		d.state.Hats[i] = hostinput.HatAngle(s.Hats[i])
	}
	buttons := d.caps.Buttons
	if buttons > s.NumButtons {
		buttons = s.NumButtons
	}
	for i := 0; i < buttons; i++ {
		d.state.Buttons[i] = s.Buttons[i]
	}
	return nil
}

// readNative samples an XInput slot and reshapes it: sticks into
// axes 0-3, triggers stretched onto axes 4-5, d-pad bits onto hat 0,
// buttons by bit index.
func (e *Engine) readNative(d *device) error {
	var st xinput.State
	if err := e.native.Read(d.nativeSlot, &st); err != nil {
		return err
	}
	d.state.Reset()
	d.state.Axes[0] = uint16(int32(st.LX) + 32768)
	d.state.Axes[1] = uint16(int32(st.LY) + 32768)
	d.state.Axes[2] = uint16(int32(st.RX) + 32768)
	d.state.Axes[3] = uint16(int32(st.RY) + 32768)
	d.state.Axes[4] = stretchTrigger(st.LT)
	d.state.Axes[5] = stretchTrigger(st.RT)
	d.state.Hats[0] = dpadAngle(st.Buttons)
	for i := 0; i < 16; i++ {
		d.state.Buttons[i] = st.Buttons&(1<<i) != 0
	}
	return nil
}

// stretchTrigger maps 0-255 proportionally onto 0-65535 with integer
// arithmetic (255 * 257 == 65535, no truncation at the top).
func stretchTrigger(v uint8) uint16 {
	return uint16(v) * 257
}

// dpadAngle converts XInput d-pad bits to hat centidegrees; opposing
// bits cancel, matching the joystick hat path.
func dpadAngle(buttons uint16) int32 {
	var mask uint8
	if buttons&xinput.DPadUp != 0 {
		mask |= hostinput.HatBitUp
	}
	if buttons&xinput.DPadDown != 0 {
		mask |= hostinput.HatBitDown
	}
	if buttons&xinput.DPadLeft != 0 {
		mask |= hostinput.HatBitLeft
	}
	if buttons&xinput.DPadRight != 0 {
		mask |= hostinput.HatBitRight
	}
	return hostinput.HatAngle(mask)
}

// vibrationForDevice finds the slot whose vibration this device
// should play: the lowest-slot enabled assignment wins when a device
// feeds several slots.
func (e *Engine) vibrationForDevice(d *device) (pad.Vibration, *Assignment, bool) {
	for i := range e.live {
		la := &e.live[i]
		if la.dev == d && la.Enabled {
			return pad.UnpackVibration(e.vib[la.Slot].Load()), &la.Assignment, true
		}
	}
	return pad.Vibration{}, nil, false
}
