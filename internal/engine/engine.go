// Package engine runs the input translation pipeline: a 1 kHz loop
// that enumerates physical devices, reads their raw state, maps it
// through per-device configurations, combines per-slot outputs,
// drives up to four virtual Xbox-360 controllers and routes their
// rumble back to the hardware.
package engine

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/virtualpad"
	"github.com/ThreeDeeJay/padforge/xinput"
)

// MaxSlots is the number of virtual controller slots.
const MaxSlots = 4

// Options parameterise the engine. Zero values take the defaults.
type Options struct {
	// PollInterval is the cycle period. Default 1ms.
	PollInterval time.Duration
	// GraceCycles is how many consecutive inactive cycles a virtual
	// controller survives before being destroyed. Default 10000.
	GraceCycles int
	// AttachWait bounds the spin waiting for a freshly created
	// virtual controller to surface on an OS XInput slot. Default
	// 50ms.
	AttachWait time.Duration
	Logger     *slog.Logger
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Millisecond
	}
	if o.GraceCycles <= 0 {
		o.GraceCycles = 10000
	}
	if o.AttachWait <= 0 {
		o.AttachWait = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Engine owns the pipeline. Construct with New, wire subscribers via
// Events, then call Run on a dedicated goroutine.
type Engine struct {
	opt    Options
	log    *slog.Logger
	host   hostinput.Backend
	native xinput.Source  // nil when the platform has no native stack
	bus    virtualpad.Bus // nil disables stage 5 from the start

	events Events

	// Device records. devMu guards the collection; the pipeline
	// thread and the exported seed/flag/remove methods write under it.
	devMu   sync.Mutex
	devices []*device
	byID    map[string]*device

	// Assignment double buffer: consumers publish into pending, the
	// pipeline adopts at cycle boundaries.
	pending atomic.Pointer[[]Assignment]
	live    []liveAssignment
	liveSrc *[]Assignment

	// combined is pipeline-private; readback is the stage-6 copy
	// external consumers read at display cadence.
	combined   [MaxSlots]pad.Gamepad
	readMu     sync.Mutex
	readback   [MaxSlots]pad.Gamepad
	slotActive [MaxSlots]bool

	// vib holds inbound vibration per slot, packed so the driver
	// callback threads publish with one atomic store.
	vib [MaxSlots]atomic.Uint32

	// loopback is the set of OS XInput slots occupied by our own
	// virtual controllers; stage 1b never enumerates them.
	loopMu   sync.Mutex
	loopback map[int]struct{}

	slots [MaxSlots]slotRuntime

	driverMissing atomic.Bool
	freqBits      atomic.Uint64

	cycleTimes [1024]time.Time
	cycleIdx   int
	cycleCount uint64
	lastFreq   time.Time
}

// New builds an engine over the three platform contracts. native and
// bus may be nil: a nil native source skips sub-stage 1b and loopback
// tracking, a nil bus disables the output stage.
func New(host hostinput.Backend, native xinput.Source, bus virtualpad.Bus, opt Options) *Engine {
	opt.fill()
	e := &Engine{
		opt:      opt,
		log:      opt.Logger,
		host:     host,
		native:   native,
		bus:      bus,
		byID:     make(map[string]*device),
		loopback: make(map[int]struct{}),
	}
	for i := range e.slots {
		e.slots[i] = slotRuntime{phase: slotDetached, osSlot: -1}
	}
	if bus == nil {
		e.driverMissing.Store(true)
	}
	return e
}

// Events exposes the subscription hub.
func (e *Engine) Events() *Events { return &e.events }

// SeedDevices pre-populates offline records, typically from the
// settings file, so hidden/enabled flags survive restarts.
func (e *Engine) SeedDevices(seeds []DeviceSeed) {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	for _, s := range seeds {
		if _, ok := e.byID[s.InstanceID]; ok {
			continue
		}
		d := &device{
			instanceID: s.InstanceID,
			productID:  s.ProductID,
			name:       s.Name,
			vendor:     s.Vendor,
			product:    s.Product,
			class:      s.Class,
			caps:       s.Caps,
			hidden:     s.Hidden,
			enabled:    s.Enabled,
			nativeSlot: -1,
			guid:       ProductGUID(s.Vendor, s.Product),
		}
		d.ff.clear()
		d.state.Reset()
		d.prevState.Reset()
		e.devices = append(e.devices, d)
		e.byID[d.instanceID] = d
	}
}

// Devices returns snapshots of every record, online or not.
func (e *Engine) Devices() []DeviceSnapshot {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	out := make([]DeviceSnapshot, 0, len(e.devices))
	for _, d := range e.devices {
		out = append(out, DeviceSnapshot{
			InstanceID: d.instanceID,
			ProductID:  d.productID,
			Name:       d.name,
			Vendor:     d.vendor,
			Product:    d.product,
			Class:      d.class,
			Caps:       d.caps,
			Online:     d.online,
			Hidden:     d.hidden,
			Enabled:    d.enabled,
			State:      d.state,
		})
	}
	return out
}

// SetDeviceEnabled flips a record's enabled flag.
func (e *Engine) SetDeviceEnabled(instanceID string, enabled bool) bool {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	d, ok := e.byID[instanceID]
	if ok {
		d.enabled = enabled
	}
	return ok
}

// SetDeviceHidden flips a record's hidden flag.
func (e *Engine) SetDeviceHidden(instanceID string, hidden bool) bool {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	d, ok := e.byID[instanceID]
	if ok {
		d.hidden = hidden
	}
	return ok
}

// RemoveDevice drops a record entirely. This is the only way a
// record leaves the collection; disconnects merely mark it offline.
// Online devices are refused.
func (e *Engine) RemoveDevice(instanceID string) bool {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	d, ok := e.byID[instanceID]
	if !ok || d.online {
		return false
	}
	delete(e.byID, instanceID)
	for i, dd := range e.devices {
		if dd == d {
			e.devices = append(e.devices[:i], e.devices[i+1:]...)
			break
		}
	}
	return true
}

// Combined returns the stage-6 copy of a slot's output.
func (e *Engine) Combined(slot int) pad.Gamepad {
	if slot < 0 || slot >= MaxSlots {
		return pad.Gamepad{}
	}
	e.readMu.Lock()
	defer e.readMu.Unlock()
	return e.readback[slot]
}

// Vibration returns the last inbound vibration for a slot.
func (e *Engine) Vibration(slot int) pad.Vibration {
	if slot < 0 || slot >= MaxSlots {
		return pad.Vibration{}
	}
	return pad.UnpackVibration(e.vib[slot].Load())
}

// Frequency returns the measured loop frequency in Hz.
func (e *Engine) Frequency() float64 {
	return math.Float64frombits(e.freqBits.Load())
}

// DriverMissing reports whether the virtual-controller bus is
// unusable and the output stage is disabled.
func (e *Engine) DriverMissing() bool { return e.driverMissing.Load() }

// loopbackOccupied reports whether an OS XInput slot is one of ours.
func (e *Engine) loopbackOccupied(osSlot int) bool {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	_, ok := e.loopback[osSlot]
	return ok
}

func (e *Engine) loopbackAdd(osSlot int) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	e.loopback[osSlot] = struct{}{}
}

func (e *Engine) loopbackRemove(osSlot int) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	delete(e.loopback, osSlot)
}

func (e *Engine) reportError(stage Stage, deviceID, msg string, err error) {
	e.log.Error(msg, "stage", stage.String(), "device", deviceID, "error", err)
	e.events.emitError(ErrorEvent{Stage: stage, DeviceID: deviceID, Message: msg, Err: err})
}
