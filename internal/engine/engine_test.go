package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeDeeJay/padforge/hostinput"
	th "github.com/ThreeDeeJay/padforge/internal/testing"
	"github.com/ThreeDeeJay/padforge/mapping"
	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/virtualpad"
	"github.com/ThreeDeeJay/padforge/xinput"
)

var (
	errDriverGone = virtualpad.ErrDriverUnavailable
	errSample     = errors.New("sample blew up")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rig struct {
	host   *th.MockBackend
	native *th.MockNative
	bus    *th.MockBus
	eng    *Engine
}

func newRig(t *testing.T, opt Options) *rig {
	t.Helper()
	opt.Logger = testLogger()
	// Attach waits poll a mask the mock flips synchronously; keep the
	// ceiling tiny so failure cases don't stall the test.
	if opt.AttachWait == 0 {
		opt.AttachWait = 2 * time.Millisecond
	}
	host := &th.MockBackend{}
	native := th.NewMockNative()
	bus := &th.MockBus{Native: native}
	return &rig{
		host:   host,
		native: native,
		bus:    bus,
		eng:    New(host, native, bus, opt),
	}
}

func (r *rig) step(n int) {
	for i := 0; i < n; i++ {
		r.eng.cycle(time.Now())
	}
}

func addStick(host *th.MockBackend, name string) *th.MockDevice {
	d := &th.MockDevice{
		Desc: hostinput.DeviceDesc{
			Path:    "path-" + name,
			Name:    name,
			Vendor:  0x1234,
			Product: 0x5678,
			Class:   hostinput.ClassJoystick,
		},
		Caps: hostinput.Capabilities{Axes: 6, Hats: 1, Buttons: 12, Rumble: true},
	}
	d.Data.NumAxes = 6
	d.Data.NumHats = 1
	d.Data.NumButtons = 12
	return host.AddDevice(d)
}

func buttonConfig(t *testing.T) *mapping.Config {
	t.Helper()
	c := mapping.NewConfig("button")
	require.NoError(t, c.SetBinding(mapping.OutA, "Button 0"))
	return c
}

func assignButton(t *testing.T, e *Engine, dev *th.MockDevice, slot int) {
	t.Helper()
	e.SetAssignments([]Assignment{{
		DeviceID: InstanceID(dev.Desc.Path, dev.Desc.Vendor, dev.Desc.Product, 0),
		Slot:     slot,
		Config:   buttonConfig(t),
		Enabled:  true,
	}})
}

func TestInstanceIDDeterministic(t *testing.T) {
	a := InstanceID("usb-0/1", 0x045e, 0x028e, 2)
	b := InstanceID("usb-0/1", 0x045e, 0x028e, 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, InstanceID("usb-0/1", 0x045e, 0x028e, 3))
	assert.NotEqual(t, a, InstanceID("usb-0/2", 0x045e, 0x028e, 2))
}

func TestProductGUIDShape(t *testing.T) {
	g := ProductGUID(0x045e, 0x028e)
	assert.Equal(t, [16]byte{0x5e, 0x04, 0x8e, 0x02}, g)
}

func TestEnumerateOnlineOffline(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")

	var changes int
	r.eng.Events().OnDevicesChanged(func() { changes++ })

	r.step(1)
	devs := r.eng.Devices()
	require.Len(t, devs, 1)
	assert.True(t, devs[0].Online)
	assert.True(t, devs[0].Enabled)
	assert.Equal(t, "stick", devs[0].Name)
	assert.Equal(t, 1, changes)

	// A second cycle with a still-attached device changes nothing.
	r.step(1)
	assert.Equal(t, 1, changes)

	// Unplug: record survives offline, handle closed, state neutral.
	dev.Gone = true
	r.step(1)
	devs = r.eng.Devices()
	require.Len(t, devs, 1)
	assert.False(t, devs[0].Online)
	assert.False(t, dev.Opened)
	assert.Equal(t, hostinput.NewRawState(), devs[0].State)
	assert.Equal(t, 2, changes)

	// Replug under the same identity reuses the record.
	dev.Gone = false
	r.step(1)
	devs = r.eng.Devices()
	require.Len(t, devs, 1)
	assert.True(t, devs[0].Online)
}

func TestNativePadSkippedByJoystickEnumeration(t *testing.T) {
	r := newRig(t, Options{})
	d := addStick(r.host, "xbox")
	d.Desc.Vendor = 0x045e
	d.Desc.Product = 0x028e

	r.step(1)
	assert.False(t, d.Opened, "native-class pad must not be opened by the joystick path")
	for _, snap := range r.eng.Devices() {
		assert.NotEqual(t, "xbox", snap.Name)
	}
}

func TestButtonPassthrough(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	assert.True(t, r.eng.Combined(0).IsNeutral())

	dev.Data.Buttons[0] = true
	r.step(1)
	assert.Equal(t, uint16(pad.ButtonA), r.eng.Combined(0).Buttons)

	dev.Data.Buttons[0] = false
	r.step(1)
	assert.Zero(t, r.eng.Combined(0).Buttons)
}

func TestCombineMultiDevice(t *testing.T) {
	r := newRig(t, Options{})
	devA := addStick(r.host, "a")
	devB := addStick(r.host, "b")

	mk := func(lt string) *mapping.Config {
		c := mapping.NewConfig("combine")
		require.NoError(t, c.SetBinding(mapping.OutA, "Button 0"))
		require.NoError(t, c.SetBinding(mapping.OutLeftTrigger, lt))
		require.NoError(t, c.SetBinding(mapping.OutLeftStickX, "Axis 0"))
		require.NoError(t, c.SetBinding(mapping.OutLeftStickY, "Axis 1"))
		return c
	}
	r.eng.SetAssignments([]Assignment{
		{DeviceID: InstanceID(devA.Desc.Path, devA.Desc.Vendor, devA.Desc.Product, 0), Slot: 1, Config: mk("Axis 2"), Enabled: true, SortOrder: 0},
		{DeviceID: InstanceID(devB.Desc.Path, devB.Desc.Vendor, devB.Desc.Product, 1), Slot: 1, Config: mk("Axis 2"), Enabled: true, SortOrder: 1},
	})

	// Device A raw LT 0xC8C8 (trigger byte 200); device B 0x6464
	// (100). Driver samples are signed and centred at zero.
	devA.Data.Axes[2] = 0xc8c8 - 0x8000
	devB.Data.Axes[2] = 0x6464 - 0x8000
	devA.Data.Buttons[0] = true
	devB.Data.Buttons[0] = true
	// Device B deflects the stick further than A.
	devA.Data.Axes[0] = 0x2000 - 0x8000
	devB.Data.Axes[0] = 0x7fff

	r.step(1)
	got := r.eng.Combined(1)
	assert.Equal(t, uint8(200), got.LT)
	assert.Equal(t, uint16(pad.ButtonA), got.Buttons)
	assert.Equal(t, int16(32767), got.LX)
}

func TestCombineTieKeepsLowestSortOrder(t *testing.T) {
	r := newRig(t, Options{})
	devA := addStick(r.host, "a")
	devB := addStick(r.host, "b")

	mk := func() *mapping.Config {
		c := mapping.NewConfig("tie")
		require.NoError(t, c.SetBinding(mapping.OutLeftStickX, "Axis 0"))
		require.NoError(t, c.SetBinding(mapping.OutLeftStickY, "Axis 1"))
		return c
	}
	r.eng.SetAssignments([]Assignment{
		{DeviceID: InstanceID(devB.Desc.Path, devB.Desc.Vendor, devB.Desc.Product, 1), Slot: 0, Config: mk(), Enabled: true, SortOrder: 1},
		{DeviceID: InstanceID(devA.Desc.Path, devA.Desc.Vendor, devA.Desc.Product, 0), Slot: 0, Config: mk(), Enabled: true, SortOrder: 0},
	})

	// Equal magnitude, opposite signs: sort order 0 (device A) must
	// win deterministically.
	devA.Data.Axes[0] = 16384
	devB.Data.Axes[0] = -16384

	r.step(1)
	assert.Equal(t, int16(16384), r.eng.Combined(0).LX)
	r.step(1)
	assert.Equal(t, int16(16384), r.eng.Combined(0).LX)
}

func TestSlotAttachAndSubmit(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)
	dev.Data.Buttons[0] = true

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)
	assert.True(t, ctrl.Connected())
	assert.Equal(t, uint16(pad.ButtonA), ctrl.LastSubmitted().Buttons)
}

func TestLoopbackPrevention(t *testing.T) {
	r := newRig(t, Options{})
	// Two real native pads occupy slots 0 and 1; our virtual pad
	// will land on slot 2.
	r.native.SetConnected(0, true)
	r.native.SetConnected(1, true)
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)
	require.Equal(t, 2, ctrl.OSSlot())
	assert.True(t, r.eng.loopbackOccupied(2))

	// The next enumeration must not synthesise a record for our own
	// output slot, while the real pads still enumerate.
	r.step(1)
	ids := map[string]bool{}
	for _, d := range r.eng.Devices() {
		ids[d.InstanceID] = true
	}
	assert.True(t, ids[NativeInstanceID(0)])
	assert.True(t, ids[NativeInstanceID(1)])
	assert.False(t, ids[NativeInstanceID(2)])
}

func TestGraceDestroy(t *testing.T) {
	const grace = 10
	r := newRig(t, Options{GraceCycles: grace})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)
	osSlot := ctrl.OSSlot()
	require.GreaterOrEqual(t, osSlot, 0)

	// Slot goes inactive; the controller survives grace-1 further
	// inactive cycles.
	dev.Gone = true
	r.step(1) // enters grace
	r.step(grace - 1)
	assert.True(t, ctrl.Connected())
	assert.False(t, ctrl.Disconnected())

	// One more inactive cycle destroys it and frees the OS slot
	// before enumerate runs again.
	r.step(1)
	assert.True(t, ctrl.Disconnected())
	assert.False(t, r.eng.loopbackOccupied(osSlot))
	assert.Equal(t, pad.Vibration{}, r.eng.Vibration(0))
}

func TestGraceReattach(t *testing.T) {
	const grace = 10
	r := newRig(t, Options{GraceCycles: grace})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)

	// Oscillating at the boundary must not destroy or recreate.
	for i := 0; i < grace*3; i++ {
		dev.Gone = i%2 == 0
		r.step(1)
	}
	assert.False(t, ctrl.Disconnected())
	assert.Len(t, r.bus.Controllers, 1)
}

func TestRumbleChangeSuppression(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)

	// The game holds a constant rumble for ten cycles: exactly one
	// driver submission.
	ctrl.Feedback(50, 0)
	r.step(10)
	require.Len(t, dev.RumbleCalls, 1)
	assert.Equal(t, uint16(50*257), dev.RumbleCalls[0].Low)
	assert.Equal(t, uint32(0), dev.RumbleCalls[0].DurationMS)

	// A different pair goes through.
	ctrl.Feedback(50, 20)
	r.step(5)
	require.Len(t, dev.RumbleCalls, 2)
	assert.Equal(t, uint16(20*257), dev.RumbleCalls[1].High)

	// Silence issues exactly one stop.
	ctrl.Feedback(0, 0)
	r.step(5)
	require.Len(t, dev.RumbleCalls, 3)
	assert.Equal(t, th.RumbleCall{}, dev.RumbleCalls[2])
}

func TestRumbleGainsAndSwap(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")

	c := buttonConfig(t)
	c.ForceOverall = 50
	c.ForceLeftGain = 50
	c.ForceSwap = true
	r.eng.SetAssignments([]Assignment{{
		DeviceID: InstanceID(dev.Desc.Path, dev.Desc.Vendor, dev.Desc.Product, 0),
		Slot:     0,
		Config:   c,
		Enabled:  true,
	}})

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)

	ctrl.Feedback(255, 0) // raw left 65535
	r.step(1)
	require.Len(t, dev.RumbleCalls, 1)
	// left scaled by 50% twice, then swapped onto the right motor.
	assert.Equal(t, uint16(0), dev.RumbleCalls[0].Low)
	assert.Equal(t, uint16(65535/2/2), dev.RumbleCalls[0].High)
}

func TestHapticEffectLifecycle(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "wheel")
	dev.Caps.Haptics = true
	dev.HapticsDev = &th.MockHaptics{Families: map[hostinput.EffectKind]bool{hostinput.EffectLeftRight: true}}
	assignButton(t, r.eng, dev, 0)

	r.step(1)
	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)

	ctrl.Feedback(100, 0)
	r.step(3)
	require.Len(t, dev.HapticsDev.Created, 1)
	assert.Empty(t, dev.HapticsDev.Updated)

	ctrl.Feedback(100, 50)
	r.step(3)
	require.Len(t, dev.HapticsDev.Updated, 1)
	assert.Equal(t, uint16(50*257), dev.HapticsDev.Updated[0].Right)

	ctrl.Feedback(0, 0)
	r.step(3)
	require.Len(t, dev.HapticsDev.Destroyed, 1)
	assert.Equal(t, dev.HapticsDev.Created[0].ID, dev.HapticsDev.Destroyed[0])
}

func TestNativeReadConversion(t *testing.T) {
	r := newRig(t, Options{})
	r.native.SetConnected(0, true)
	r.native.SetState(0, xinput.State{
		Buttons: xinput.DPadUp | xinput.DPadRight | 0x1000,
		LT:      255,
		RT:      128,
		LX:      -32768,
		LY:      32767,
	})

	r.step(1)
	devs := r.eng.Devices()
	require.Len(t, devs, 1)
	st := devs[0].State
	assert.Equal(t, uint16(0), st.Axes[0])
	assert.Equal(t, uint16(0xffff), st.Axes[1])
	assert.Equal(t, uint16(65535), st.Axes[4])
	assert.Equal(t, uint16(128*257), st.Axes[5])
	assert.Equal(t, int32(4500), st.Hats[0])
	assert.True(t, st.Buttons[12]) // bit 12 == A
}

func TestNativeOpposingDPadIsCentered(t *testing.T) {
	r := newRig(t, Options{})
	r.native.SetConnected(0, true)
	r.native.SetState(0, xinput.State{Buttons: xinput.DPadUp | xinput.DPadDown})

	r.step(1)
	devs := r.eng.Devices()
	require.Len(t, devs, 1)
	assert.Equal(t, hostinput.HatCentered, devs[0].State.Hats[0])
}

func TestNativeVibrationRouting(t *testing.T) {
	r := newRig(t, Options{})
	r.native.SetConnected(0, true)

	r.step(1)
	c := buttonConfig(t)
	r.eng.SetAssignments([]Assignment{{
		DeviceID: NativeInstanceID(0),
		Slot:     1,
		Config:   c,
		Enabled:  true,
	}})
	r.step(1)

	ctrl := r.bus.Controller(0)
	require.NotNil(t, ctrl)
	ctrl.Feedback(10, 20)
	r.step(3)
	require.Len(t, r.native.Rumbles[0], 1)
	assert.Equal(t, pad.Vibration{Left: 10 * 257, Right: 20 * 257}, r.native.Rumbles[0][0])
}

func TestDriverMissingDisablesOutput(t *testing.T) {
	r := newRig(t, Options{})
	r.bus.CreateErr = errDriverGone
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	var errs []ErrorEvent
	r.eng.Events().OnError(func(ev ErrorEvent) { errs = append(errs, ev) })

	r.step(5)
	assert.True(t, r.eng.DriverMissing())
	assert.Empty(t, r.bus.Controllers)
	// One latching report, not one per cycle.
	count := 0
	for _, ev := range errs {
		if ev.Stage == StageOutput {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSampleErrorIsolated(t *testing.T) {
	r := newRig(t, Options{})
	bad := addStick(r.host, "bad")
	good := addStick(r.host, "good")
	bad.SampleErr = errSample
	good.Data.Buttons[0] = true

	r.eng.SetAssignments([]Assignment{{
		DeviceID: InstanceID(good.Desc.Path, good.Desc.Vendor, good.Desc.Product, 1),
		Slot:     0,
		Config:   buttonConfig(t),
		Enabled:  true,
	}})

	var errs []ErrorEvent
	r.eng.Events().OnError(func(ev ErrorEvent) { errs = append(errs, ev) })

	r.step(1)
	assert.Equal(t, uint16(pad.ButtonA), r.eng.Combined(0).Buttons)
	require.NotEmpty(t, errs)
	assert.Equal(t, StageRead, errs[0].Stage)
}

func TestStateChangedEvents(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")

	var changed []string
	r.eng.Events().OnStateChanged(func(id string) { changed = append(changed, id) })

	dev.Data.Buttons[1] = true
	r.step(1)
	require.Len(t, changed, 1)

	// Unchanged state stays quiet.
	r.step(3)
	assert.Len(t, changed, 1)

	dev.Data.Buttons[1] = false
	r.step(1)
	assert.Len(t, changed, 2)
}

func TestDisabledAssignmentCombinesNeutral(t *testing.T) {
	r := newRig(t, Options{})
	dev := addStick(r.host, "stick")
	dev.Data.Buttons[0] = true
	r.eng.SetAssignments([]Assignment{{
		DeviceID: InstanceID(dev.Desc.Path, dev.Desc.Vendor, dev.Desc.Product, 0),
		Slot:     0,
		Config:   buttonConfig(t),
		Enabled:  false,
	}})

	r.step(1)
	assert.True(t, r.eng.Combined(0).IsNeutral())
	assert.Empty(t, r.bus.Controllers, "inactive slot must not attach")
}

func TestRunLoopStopsAndDetaches(t *testing.T) {
	r := newRig(t, Options{PollInterval: time.Millisecond})
	dev := addStick(r.host, "stick")
	assignButton(t, r.eng, dev, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.eng.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for r.bus.Controller(0) == nil {
		select {
		case <-deadline:
			t.Fatal("virtual controller never attached")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	// Shutdown tears every virtual controller down.
	assert.True(t, r.bus.Controller(0).Disconnected())
	assert.Greater(t, r.eng.Frequency(), 0.0)
}

func TestSeedDevicesSurviveFlags(t *testing.T) {
	r := newRig(t, Options{})
	r.eng.SeedDevices([]DeviceSeed{{
		InstanceID: "seeded",
		Name:       "old pad",
		Hidden:     true,
		Enabled:    false,
	}})

	devs := r.eng.Devices()
	require.Len(t, devs, 1)
	assert.True(t, devs[0].Hidden)
	assert.False(t, devs[0].Enabled)
	assert.False(t, devs[0].Online)

	assert.True(t, r.eng.SetDeviceEnabled("seeded", true))
	assert.True(t, r.eng.RemoveDevice("seeded"))
	assert.Empty(t, r.eng.Devices())
}
