// Package sdljoy implements the hostinput contract on top of SDL's
// joystick and haptic subsystems.
package sdljoy

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/ThreeDeeJay/padforge/hostinput"
)

// Backend enumerates and opens joystick-class devices through SDL.
// All methods must be called from the pipeline thread; SDL's joystick
// API is not thread-safe.
type Backend struct {
	initialized bool
}

// New initialises the SDL joystick and haptic subsystems.
func New() (*Backend, error) {
	if err := sdl.Init(sdl.INIT_JOYSTICK | sdl.INIT_HAPTIC); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	// Events are drained by polling, not the SDL event queue.
	sdl.JoystickEventState(sdl.IGNORE)
	return &Backend{initialized: true}, nil
}

func (b *Backend) Count() (int, error) {
	sdl.JoystickUpdate()
	return sdl.NumJoysticks(), nil
}

func (b *Backend) Describe(index int) (hostinput.DeviceDesc, error) {
	guid := sdl.JoystickGetDeviceGUID(index)
	return hostinput.DeviceDesc{
		Path:    sdl.JoystickGetGUIDString(guid),
		Name:    sdl.JoystickNameForIndex(index),
		Vendor:  sdl.JoystickGetDeviceVendor(index),
		Product: sdl.JoystickGetDeviceProduct(index),
		Version: sdl.JoystickGetDeviceProductVersion(index),
		Class:   classify(sdl.JoystickGetDeviceType(index)),
	}, nil
}

func (b *Backend) Open(index int) (hostinput.Device, error) {
	j := sdl.JoystickOpen(index)
	if j == nil {
		return nil, fmt.Errorf("sdljoy: open index %d: %v", index, sdl.GetError())
	}
	d := &device{joy: j}
	d.fillCapabilities()
	return d, nil
}

func (b *Backend) Close() error {
	if b.initialized {
		sdl.QuitSubSystem(sdl.INIT_JOYSTICK | sdl.INIT_HAPTIC)
		b.initialized = false
	}
	return nil
}

func classify(t sdl.JoystickType) hostinput.Class {
	switch t {
	case sdl.JOYSTICK_TYPE_GAMECONTROLLER, sdl.JOYSTICK_TYPE_ARCADE_PAD, sdl.JOYSTICK_TYPE_DANCE_PAD:
		return hostinput.ClassGamepad
	case sdl.JOYSTICK_TYPE_WHEEL:
		return hostinput.ClassWheel
	case sdl.JOYSTICK_TYPE_FLIGHT_STICK, sdl.JOYSTICK_TYPE_THROTTLE:
		return hostinput.ClassFlight
	case sdl.JOYSTICK_TYPE_GUITAR, sdl.JOYSTICK_TYPE_DRUM_KIT:
		return hostinput.ClassSupplemental
	}
	return hostinput.ClassJoystick
}

type device struct {
	joy    *sdl.Joystick
	haptic *hapticDevice
	caps   hostinput.Capabilities
}

func (d *device) fillCapabilities() {
	total := d.joy.NumAxes()
	axes := total
	if axes > hostinput.MaxAxes {
		axes = hostinput.MaxAxes
	}
	sliders := total - axes
	if sliders > hostinput.MaxSliders {
		sliders = hostinput.MaxSliders
	}
	hats := d.joy.NumHats()
	if hats > hostinput.MaxHats {
		hats = hostinput.MaxHats
	}
	buttons := d.joy.NumButtons()
	if buttons > hostinput.MaxButtons {
		buttons = hostinput.MaxButtons
	}
	d.caps = hostinput.Capabilities{
		Axes:    axes,
		Sliders: sliders,
		Hats:    hats,
		Buttons: buttons,
	}

	// Plain rumble is probed with a zero-strength pulse.
	if err := d.joy.Rumble(0, 0, 0); err == nil {
		d.caps.Rumble = true
	}
	if h, err := sdl.HapticOpenFromJoystick(d.joy); err == nil && h != nil {
		hd := &hapticDevice{h: h}
		if hd.queryFamilies() {
			d.haptic = hd
			d.caps.Haptics = true
			d.caps.Rumble = true
		} else {
			h.Close()
		}
	}
}

func (d *device) Capabilities() hostinput.Capabilities { return d.caps }

func (d *device) Attached() bool { return d.joy.Attached() }

func (d *device) Sample(dst *hostinput.Sample) error {
	if !d.joy.Attached() {
		return hostinput.ErrDeviceGone
	}
	n := d.caps.Axes + d.caps.Sliders
	for i := 0; i < n; i++ {
		dst.Axes[i] = d.joy.Axis(i)
	}
	dst.NumAxes = n
	for i := 0; i < d.caps.Hats; i++ {
		dst.Hats[i] = d.joy.Hat(i)
	}
	dst.NumHats = d.caps.Hats
	for i := 0; i < d.caps.Buttons; i++ {
		dst.Buttons[i] = d.joy.Button(i) != 0
	}
	dst.NumButtons = d.caps.Buttons
	return nil
}

func (d *device) Rumble(low, high uint16, durationMS uint32) error {
	if durationMS == 0 {
		durationMS = sdl.HAPTIC_INFINITY
	}
	return d.joy.Rumble(low, high, durationMS)
}

func (d *device) Haptics() hostinput.Haptics {
	if d.haptic == nil {
		return nil
	}
	return d.haptic
}

func (d *device) Close() error {
	if d.haptic != nil {
		d.haptic.h.Close()
		d.haptic = nil
	}
	d.joy.Close()
	return nil
}

type hapticDevice struct {
	h         *sdl.Haptic
	leftRight bool
	sine      bool
	constant  bool
}

func (hd *hapticDevice) queryFamilies() bool {
	q, err := hd.h.Query()
	if err != nil {
		return false
	}
	hd.leftRight = q&sdl.HAPTIC_LEFTRIGHT != 0
	hd.sine = q&sdl.HAPTIC_SINE != 0
	hd.constant = q&sdl.HAPTIC_CONSTANT != 0
	return hd.leftRight || hd.sine || hd.constant
}

func (hd *hapticDevice) Supports(kind hostinput.EffectKind) bool {
	switch kind {
	case hostinput.EffectLeftRight:
		return hd.leftRight
	case hostinput.EffectSine:
		return hd.sine
	case hostinput.EffectConstant:
		return hd.constant
	}
	return false
}

// sinePeriod derives the periodic effect's period from the dominant
// motor: stronger rumble spins faster.
func sinePeriod(left, right uint16) uint16 {
	m := left
	if right > m {
		m = right
	}
	if m == 0 {
		return 1000
	}
	return uint16(20 + (65535-uint32(m))/655)
}

func (hd *hapticDevice) effect(kind hostinput.EffectKind, left, right uint16) sdl.HapticEffect {
	switch kind {
	case hostinput.EffectSine:
		return &sdl.HapticPeriodic{
			Type:      sdl.HAPTIC_SINE,
			Length:    sdl.HAPTIC_INFINITY,
			Period:    sinePeriod(left, right),
			Magnitude: int16(maxMotor(left, right) / 2),
		}
	case hostinput.EffectConstant:
		return &sdl.HapticConstant{
			Type:   sdl.HAPTIC_CONSTANT,
			Length: sdl.HAPTIC_INFINITY,
			Level:  int16(maxMotor(left, right) / 2),
		}
	default:
		return &sdl.HapticLeftRight{
			Type:           sdl.HAPTIC_LEFTRIGHT,
			Length:         sdl.HAPTIC_INFINITY,
			LargeMagnitude: left,
			SmallMagnitude: right,
		}
	}
}

func maxMotor(left, right uint16) uint16 {
	if right > left {
		return right
	}
	return left
}

func (hd *hapticDevice) Create(kind hostinput.EffectKind, left, right uint16) (int, error) {
	id, err := hd.h.NewEffect(hd.effect(kind, left, right))
	if err != nil {
		return -1, err
	}
	if err := hd.h.RunEffect(id, 1); err != nil {
		hd.h.DestroyEffect(id)
		return -1, err
	}
	return id, nil
}

func (hd *hapticDevice) Update(id int, kind hostinput.EffectKind, left, right uint16) error {
	return hd.h.UpdateEffect(id, hd.effect(kind, left, right))
}

func (hd *hapticDevice) Destroy(id int) error {
	hd.h.StopEffect(id)
	hd.h.DestroyEffect(id)
	return nil
}
