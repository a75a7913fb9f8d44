// Package testing provides mock implementations of the three platform
// contracts so the whole pipeline can be exercised without hardware.
package testing

import (
	"sync"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/virtualpad"
	"github.com/ThreeDeeJay/padforge/xinput"
)

// MockBackend is a hostinput.Backend over an editable device list.
type MockBackend struct {
	mu      sync.Mutex
	Devices []*MockDevice
}

// AddDevice appends a device and returns it for convenience.
func (b *MockBackend) AddDevice(d *MockDevice) *MockDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Devices = append(b.Devices, d)
	return d
}

func (b *MockBackend) Count() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Devices), nil
}

func (b *MockBackend) Describe(index int) (hostinput.DeviceDesc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Devices[index].Desc, nil
}

func (b *MockBackend) Open(index int) (hostinput.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.Devices[index]
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.Opened = true
	return d, nil
}

func (b *MockBackend) Close() error { return nil }

// MockDevice is one fake physical device. Tests poke Data and read
// back the recorded rumble calls.
type MockDevice struct {
	Desc    hostinput.DeviceDesc
	Caps    hostinput.Capabilities
	Data    hostinput.Sample
	OpenErr error
	Gone    bool
	Opened  bool

	RumbleCalls []RumbleCall
	HapticsDev  *MockHaptics

	SampleErr error
}

// RumbleCall records one plain-rumble submission.
type RumbleCall struct {
	Low, High  uint16
	DurationMS uint32
}

func (d *MockDevice) Capabilities() hostinput.Capabilities { return d.Caps }
func (d *MockDevice) Attached() bool                       { return !d.Gone }

func (d *MockDevice) Sample(dst *hostinput.Sample) error {
	if d.Gone {
		return hostinput.ErrDeviceGone
	}
	if d.SampleErr != nil {
		return d.SampleErr
	}
	*dst = d.Data
	return nil
}

func (d *MockDevice) Rumble(low, high uint16, durationMS uint32) error {
	d.RumbleCalls = append(d.RumbleCalls, RumbleCall{Low: low, High: high, DurationMS: durationMS})
	return nil
}

func (d *MockDevice) Haptics() hostinput.Haptics {
	if d.HapticsDev == nil {
		return nil
	}
	return d.HapticsDev
}

func (d *MockDevice) Close() error {
	d.Opened = false
	return nil
}

// MockHaptics records effect lifecycle calls.
type MockHaptics struct {
	Families map[hostinput.EffectKind]bool
	nextID   int

	Created   []EffectCall
	Updated   []EffectCall
	Destroyed []int
}

// EffectCall records one create/update.
type EffectCall struct {
	ID          int
	Kind        hostinput.EffectKind
	Left, Right uint16
}

func (h *MockHaptics) Supports(kind hostinput.EffectKind) bool { return h.Families[kind] }

func (h *MockHaptics) Create(kind hostinput.EffectKind, left, right uint16) (int, error) {
	id := h.nextID
	h.nextID++
	h.Created = append(h.Created, EffectCall{ID: id, Kind: kind, Left: left, Right: right})
	return id, nil
}

func (h *MockHaptics) Update(id int, kind hostinput.EffectKind, left, right uint16) error {
	h.Updated = append(h.Updated, EffectCall{ID: id, Kind: kind, Left: left, Right: right})
	return nil
}

func (h *MockHaptics) Destroy(id int) error {
	h.Destroyed = append(h.Destroyed, id)
	return nil
}

// MockNative fakes the XInput stack. Slots 0-3 carry editable states;
// the mask is shared with MockBus so virtual controllers show up as
// native connections, which is what the loopback tests need.
type MockNative struct {
	mu        sync.Mutex
	Connected [xinput.MaxSlots]bool
	States    [xinput.MaxSlots]xinput.State
	Rumbles   map[int][]pad.Vibration
}

func NewMockNative() *MockNative {
	return &MockNative{Rumbles: make(map[int][]pad.Vibration)}
}

func (n *MockNative) SetConnected(slot int, connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Connected[slot] = connected
}

func (n *MockNative) SetState(slot int, st xinput.State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.States[slot] = st
}

func (n *MockNative) Probe(slot int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Connected[slot]
}

func (n *MockNative) Read(slot int, dst *xinput.State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.Connected[slot] {
		return xinput.ErrUnavailable
	}
	*dst = n.States[slot]
	return nil
}

func (n *MockNative) SetVibration(slot int, left, right uint16) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Rumbles[slot] = append(n.Rumbles[slot], pad.Vibration{Left: left, Right: right})
	return nil
}

func (n *MockNative) ConnectedMask() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	var mask uint8
	for slot, c := range n.Connected {
		if c {
			mask |= 1 << slot
		}
	}
	return mask
}

// MockBus fakes the virtual-controller bus. When Native is set, a
// connecting controller occupies the lowest free native slot, the way
// a real virtual pad surfaces on the XInput stack.
type MockBus struct {
	mu          sync.Mutex
	Native      *MockNative
	CreateErr   error
	Controllers []*MockController
	nextIndex   int
}

func (b *MockBus) Create() (virtualpad.Controller, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CreateErr != nil {
		return nil, b.CreateErr
	}
	c := &MockController{bus: b, index: b.nextIndex, osSlot: -1}
	b.nextIndex++
	b.Controllers = append(b.Controllers, c)
	return c, nil
}

func (b *MockBus) Close() error { return nil }

// Controller returns the i-th created controller or nil.
func (b *MockBus) Controller(i int) *MockController {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.Controllers) {
		return nil
	}
	return b.Controllers[i]
}

// MockController records submissions and exposes Feedback to fire the
// inbound vibration callback like a driver thread would.
type MockController struct {
	bus    *MockBus
	index  int
	osSlot int

	mu           sync.Mutex
	connected    bool
	disconnected bool
	feedback     virtualpad.FeedbackFunc
	Submitted    []pad.Gamepad
}

func (c *MockController) Connect() error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.bus.Native != nil {
		c.bus.Native.mu.Lock()
		for slot := range c.bus.Native.Connected {
			if !c.bus.Native.Connected[slot] {
				c.bus.Native.Connected[slot] = true
				c.osSlot = slot
				break
			}
		}
		c.bus.Native.mu.Unlock()
	}
	return nil
}

func (c *MockController) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.disconnected = true
	c.mu.Unlock()
	if c.bus.Native != nil && c.osSlot >= 0 {
		c.bus.Native.SetConnected(c.osSlot, false)
		c.osSlot = -1
	}
	return nil
}

func (c *MockController) Submit(g pad.Gamepad) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Submitted = append(c.Submitted, g)
	return nil
}

func (c *MockController) SlotIndex() int { return c.index }

func (c *MockController) OnFeedback(f virtualpad.FeedbackFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback = f
}

// Feedback fires the registered callback with byte motor values.
func (c *MockController) Feedback(left, right uint8) {
	c.mu.Lock()
	f := c.feedback
	c.mu.Unlock()
	if f != nil {
		f(left, right)
	}
}

// OSSlot reports which native slot the controller occupies, -1 when
// none.
func (c *MockController) OSSlot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.osSlot
}

// Connected reports the controller's current link state.
func (c *MockController) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnected reports whether Disconnect was ever called.
func (c *MockController) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// LastSubmitted returns the most recent report, or a neutral one.
func (c *MockController) LastSubmitted() pad.Gamepad {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Submitted) == 0 {
		return pad.Gamepad{}
	}
	return c.Submitted[len(c.Submitted)-1]
}
