package engine

import (
	"errors"
	"time"

	"github.com/ThreeDeeJay/padforge/pad"
	"github.com/ThreeDeeJay/padforge/virtualpad"
)

// Slot lifecycle phases.
const (
	slotDetached = iota
	slotAttached
	slotGrace
)

// slotRuntime is one virtual controller's lifecycle state.
type slotRuntime struct {
	phase  int
	ctrl   virtualpad.Controller
	grace  int
	osSlot int // OS XInput slot the controller landed on, -1 unknown
}

// output is stage 5: keep each slot's virtual controller in step with
// its activity, submit the combined value while attached, and hold a
// grace period before tearing down. Destroying a controller severs
// the game's vibration binding, so transient inactivity must not
// cycle it.
func (e *Engine) output() {
	if e.driverMissing.Load() {
		return
	}
	for slot := 0; slot < MaxSlots; slot++ {
		sr := &e.slots[slot]
		active := e.slotActive[slot]

		switch sr.phase {
		case slotDetached:
			if !active {
				continue
			}
			if e.attach(slot, sr) {
				e.submit(slot, sr)
			}
		case slotAttached:
			if active {
				e.submit(slot, sr)
			} else {
				sr.phase = slotGrace
				sr.grace = e.opt.GraceCycles
				// Keep reporting neutral while in grace.
				e.submit(slot, sr)
			}
		case slotGrace:
			if active {
				sr.phase = slotAttached
				sr.grace = 0
				e.submit(slot, sr)
				continue
			}
			sr.grace--
			if sr.grace <= 0 {
				e.detach(slot, sr)
			} else {
				e.submit(slot, sr)
			}
		}
	}
}

// attach creates and connects a slot's virtual controller, then waits
// a bounded interval for it to surface on an OS XInput slot so stage
// 1 can exclude it from enumeration.
func (e *Engine) attach(slot int, sr *slotRuntime) bool {
	ctrl, err := e.bus.Create()
	if err != nil {
		if errors.Is(err, virtualpad.ErrDriverUnavailable) {
			e.driverMissing.Store(true)
			e.reportError(StageOutput, "", "virtual controller bus unavailable, output disabled", err)
		} else {
			e.reportError(StageOutput, "", "virtual controller create failed", err)
		}
		return false
	}

	vibSlot := &e.vib[slot]
	ctrl.OnFeedback(func(left, right uint8) {
		vibSlot.Store(pad.FromFeedback(left, right).Pack())
	})

	var before uint8
	if e.native != nil {
		before = e.native.ConnectedMask()
	}

	if err := ctrl.Connect(); err != nil {
		e.reportError(StageOutput, "", "virtual controller connect failed", err)
		_ = ctrl.Disconnect()
		return false
	}

	sr.ctrl = ctrl
	sr.phase = slotAttached
	sr.grace = 0
	sr.osSlot = e.waitForOSSlot(before)
	if sr.osSlot >= 0 {
		e.loopbackAdd(sr.osSlot)
	}
	e.log.Info("virtual controller attached", "slot", slot, "osSlot", sr.osSlot)
	return true
}

// waitForOSSlot spins (bounded) until the XInput connected mask gains
// a slot, returning it, or -1 on timeout. An expired wait does not
// abort the attach; it only stops polling for state propagation.
func (e *Engine) waitForOSSlot(before uint8) int {
	if e.native == nil {
		return -1
	}
	deadline := time.Now().Add(e.opt.AttachWait)
	for {
		after := e.native.ConnectedMask()
		if gained := after &^ before; gained != 0 {
			for s := 0; s < MaxSlots; s++ {
				if gained&(1<<s) != 0 {
					return s
				}
			}
		}
		if time.Now().After(deadline) {
			return -1
		}
		time.Sleep(time.Millisecond)
	}
}

func (e *Engine) submit(slot int, sr *slotRuntime) {
	if err := sr.ctrl.Submit(e.combined[slot]); err != nil {
		e.reportError(StageOutput, "", "virtual controller submit failed", err)
	}
}

// detach disconnects a slot's controller. The OS slot leaves the
// loopback set before the next enumerate runs, and pending vibration
// for the slot is cleared.
func (e *Engine) detach(slot int, sr *slotRuntime) {
	if sr.osSlot >= 0 {
		e.loopbackRemove(sr.osSlot)
		sr.osSlot = -1
	}
	if sr.ctrl != nil {
		if err := sr.ctrl.Disconnect(); err != nil {
			e.reportError(StageOutput, "", "virtual controller disconnect failed", err)
		}
		sr.ctrl = nil
	}
	e.vib[slot].Store(0)
	sr.phase = slotDetached
	sr.grace = 0
	e.log.Info("virtual controller detached", "slot", slot)
}

// detachAll tears down every slot; used on shutdown.
func (e *Engine) detachAll() {
	for slot := 0; slot < MaxSlots; slot++ {
		sr := &e.slots[slot]
		if sr.phase != slotDetached {
			e.detach(slot, sr)
		}
	}
}
