package engine

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/ThreeDeeJay/padforge/hostinput"
)

// InstanceID derives the deterministic identity of a physical device
// from its stable hardware path plus (vid, pid, enumeration index).
// Same inputs, same id.
func InstanceID(path string, vid, pid uint16, index int) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s|%04x|%04x|%d", path, vid, pid, index)))
	return hex.EncodeToString(sum[:16])
}

// ProductID identifies the device model, independent of which port
// it is plugged into.
func ProductID(vid, pid uint16) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%04x|%04x", vid, pid)))
	return hex.EncodeToString(sum[:16])
}

// NativeInstanceID names the synthetic record for a native XInput
// slot.
func NativeInstanceID(slot int) string {
	return fmt.Sprintf("XINPUT%d", slot)
}

// ProductGUID packs vid/pid into the 16-byte GUID shape
// [vid_lo, vid_hi, pid_lo, pid_hi, 0 x 12].
func ProductGUID(vid, pid uint16) [16]byte {
	var g [16]byte
	g[0] = byte(vid)
	g[1] = byte(vid >> 8)
	g[2] = byte(pid)
	g[3] = byte(pid >> 8)
	return g
}

// ffState is the per-device force-feedback runtime: the last
// committed motor pair for change suppression, the cached gain
// values, and the active haptic effect if one is running.
type ffState struct {
	lastLeft  uint16
	lastRight uint16
	haveLast  bool

	cachedOverall int
	cachedLeft    int
	cachedRight   int
	cachedSwap    bool

	effectID   int
	effectKind hostinput.EffectKind
	active     bool
}

func (f *ffState) clear() {
	*f = ffState{effectID: -1}
}

// device is one PhysicalDevice record. The pipeline thread owns the
// handle, raw state and ffState exclusively; external consumers see
// copies via Engine.Devices.
type device struct {
	instanceID string
	productID  string
	name       string
	vendor     uint16
	product    uint16
	class      hostinput.Class
	caps       hostinput.Capabilities
	guid       [16]byte

	online  bool
	hidden  bool
	enabled bool

	state     hostinput.RawState
	prevState hostinput.RawState

	handle     hostinput.Device
	nativeSlot int // >= 0 for XINPUT records, else -1
	enumIndex  int
	seen       bool

	ff     ffState
	sample hostinput.Sample
}

func (d *device) isNative() bool { return d.nativeSlot >= 0 }

// DeviceSnapshot is the externally visible copy of a record.
type DeviceSnapshot struct {
	InstanceID string
	ProductID  string
	Name       string
	Vendor     uint16
	Product    uint16
	Class      hostinput.Class
	Caps       hostinput.Capabilities
	Online     bool
	Hidden     bool
	Enabled    bool
	State      hostinput.RawState
}

// DeviceSeed pre-populates an offline record, typically from the
// settings file, so flags survive restarts.
type DeviceSeed struct {
	InstanceID string
	ProductID  string
	Name       string
	Vendor     uint16
	Product    uint16
	Class      hostinput.Class
	Caps       hostinput.Capabilities
	Hidden     bool
	Enabled    bool
}
