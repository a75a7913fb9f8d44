package engine

import (
	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/xinput"
)

// Vendor/product ids of controllers the native XInput stack owns.
// These are skipped, without being opened, during joystick
// enumeration and picked up by sub-stage 1b instead, so a pad never
// appears twice.
const xboxVendorID = 0x045E

var knownXboxPIDs = map[uint16]bool{
	0x028E: true, // wired 360
	0x028F: true, // wireless 360 dongle
	0x02D1: true, // Xbox One
	0x02DD: true, // Xbox One (fw 2015)
	0x02E3: true, // Elite
	0x02EA: true, // Xbox One S
	0x02FD: true, // Xbox One S BT
	0x0719: true, // wireless receiver
	0x0B12: true, // Series X|S
}

func isNativePad(vid, pid uint16) bool {
	return vid == xboxVendorID && knownXboxPIDs[pid]
}

// nativeCaps is the canonical capability shape of a native XInput
// controller: 4 stick axes + 2 trigger axes, one hat for the d-pad,
// 16 buttons.
var nativeCaps = hostinput.Capabilities{
	Axes:    6,
	Hats:    1,
	Buttons: 16,
	Rumble:  true,
}

// enumerate is stage 1: discover and open new devices, detect
// disconnects, and probe the native XInput slots.
func (e *Engine) enumerate() {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	changed := false
	for _, d := range e.devices {
		d.seen = false
	}

	count, err := e.host.Count()
	if err != nil {
		e.reportError(StageEnumerate, "", "device count failed", err)
		count = 0
	}

	for i := 0; i < count; i++ {
		desc, err := e.host.Describe(i)
		if err != nil {
			e.reportError(StageEnumerate, "", "device describe failed", err)
			continue
		}
		id := InstanceID(desc.Path, desc.Vendor, desc.Product, i)

		if d, ok := e.byID[id]; ok && d.online && d.handle != nil && d.handle.Attached() {
			d.seen = true
			d.enumIndex = i
			continue
		}

		if isNativePad(desc.Vendor, desc.Product) {
			// Handled exclusively through the XInput back-end below.
			continue
		}

		handle, err := e.host.Open(i)
		if err != nil {
			e.reportError(StageEnumerate, id, "device open failed", err)
			continue
		}

		d, ok := e.byID[id]
		if !ok {
			d = &device{
				instanceID: id,
				productID:  ProductID(desc.Vendor, desc.Product),
				nativeSlot: -1,
				enabled:    true,
			}
			d.ff.clear()
			d.state.Reset()
			d.prevState.Reset()
			e.devices = append(e.devices, d)
			e.byID[id] = d
		}
		d.name = desc.Name
		d.vendor = desc.Vendor
		d.product = desc.Product
		d.class = desc.Class
		d.caps = handle.Capabilities()
		d.guid = ProductGUID(desc.Vendor, desc.Product)
		d.handle = handle
		d.enumIndex = i
		d.online = true
		d.seen = true
		changed = true
		e.log.Info("device online", "id", id, "name", d.name, "class", d.class.String())
	}

	// Close records that vanished or report detached.
	for _, d := range e.devices {
		if d.handle == nil {
			continue
		}
		if d.seen && d.handle.Attached() {
			continue
		}
		_ = d.handle.Close()
		d.handle = nil
		d.online = false
		d.ff.clear()
		d.state.Reset()
		d.prevState.Reset()
		changed = true
		e.log.Info("device offline", "id", d.instanceID, "name", d.name)
	}

	if e.enumerateNative() {
		changed = true
	}

	// The device set feeding the live assignments may have moved.
	e.adoptAssignments(changed)

	if changed {
		e.events.emitDevicesChanged()
	}
}

// enumerateNative is sub-stage 1b: probe the four OS XInput slots,
// skipping any occupied by our own virtual controllers.
func (e *Engine) enumerateNative() bool {
	if e.native == nil {
		return false
	}
	changed := false
	for slot := 0; slot < xinput.MaxSlots; slot++ {
		if e.loopbackOccupied(slot) {
			continue
		}
		connected := e.native.Probe(slot)
		id := NativeInstanceID(slot)
		d, ok := e.byID[id]

		if connected {
			if ok && d.online {
				d.seen = true
				continue
			}
			if !ok {
				d = &device{
					instanceID: id,
					productID:  ProductID(xboxVendorID, 0x028E),
					name:       "XInput Controller",
					vendor:     xboxVendorID,
					product:    0x028E,
					class:      hostinput.ClassGamepad,
					enabled:    true,
					guid:       ProductGUID(xboxVendorID, 0x028E),
				}
				e.devices = append(e.devices, d)
				e.byID[id] = d
			}
			d.nativeSlot = slot
			d.caps = nativeCaps
			d.ff.clear()
			d.state.Reset()
			d.prevState.Reset()
			d.online = true
			d.seen = true
			changed = true
			e.log.Info("native controller online", "id", id, "slot", slot)
		} else if ok && d.online {
			d.online = false
			d.ff.clear()
			d.state.Reset()
			d.prevState.Reset()
			changed = true
			e.log.Info("native controller offline", "id", id, "slot", slot)
		}
	}
	return changed
}
