package engine

import "github.com/ThreeDeeJay/padforge/hostinput"

// routeForceFeedback pushes a slot's queued vibration out through a
// device's actuator, applying the mapping's gains and suppressing
// resubmission of an identical pair. Re-sending identical rumble
// restarts the hardware effect and produces audible gaps.
func (e *Engine) routeForceFeedback(d *device) {
	if !d.caps.Rumble && !d.caps.Haptics {
		return
	}
	vib, assignment, ok := e.vibrationForDevice(d)
	if !ok {
		return
	}
	cfg := assignment.Config

	left := scaleMotor(vib.Left, cfg.ForceLeftGain, cfg.ForceOverall)
	right := scaleMotor(vib.Right, cfg.ForceRightGain, cfg.ForceOverall)
	if cfg.ForceSwap {
		left, right = right, left
	}

	ff := &d.ff
	ff.cachedOverall = cfg.ForceOverall
	ff.cachedLeft = cfg.ForceLeftGain
	ff.cachedRight = cfg.ForceRightGain
	ff.cachedSwap = cfg.ForceSwap

	if ff.haveLast && ff.lastLeft == left && ff.lastRight == right {
		return
	}
	// Nothing was ever sent and nothing is requested: don't bother
	// the hardware with a stop.
	if !ff.haveLast && left == 0 && right == 0 {
		ff.haveLast = true
		return
	}

	var err error
	if d.isNative() {
		err = e.native.SetVibration(d.nativeSlot, left, right)
	} else if h := deviceHaptics(d); h != nil {
		err = e.routeHaptic(d, h, cfg.ForceEffect, left, right)
	} else {
		err = e.routeRumble(d, left, right)
	}
	if err != nil {
		e.reportError(StageRead, d.instanceID, "force feedback failed", err)
		return
	}

	ff.lastLeft = left
	ff.lastRight = right
	ff.haveLast = true
}

func deviceHaptics(d *device) hostinput.Haptics {
	if d.handle == nil || !d.caps.Haptics {
		return nil
	}
	return d.handle.Haptics()
}

// scaleMotor applies per-motor and overall gains with 16-bit clipping.
func scaleMotor(raw uint16, gainPct, overallPct int) uint16 {
	v := uint64(raw) * uint64(clampPct(gainPct)) / 100
	v = v * uint64(clampPct(overallPct)) / 100
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v)
}

func clampPct(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// routeRumble drives a plain dual-motor device. Zero duration means
// the driver retains the command until the next call, so there is no
// refresh cliff if the pipeline stalls.
func (e *Engine) routeRumble(d *device, left, right uint16) error {
	if left == 0 && right == 0 {
		d.ff.active = false
		return d.handle.Rumble(0, 0, 0)
	}
	d.ff.active = true
	return d.handle.Rumble(left, right, 0)
}

// routeHaptic drives an effect-capable device: create-and-run on the
// first non-zero pair, update in place while running, destroy on
// return to silence.
func (e *Engine) routeHaptic(d *device, h hostinput.Haptics, kind hostinput.EffectKind, left, right uint16) error {
	if !h.Supports(kind) {
		for _, k := range []hostinput.EffectKind{hostinput.EffectLeftRight, hostinput.EffectSine, hostinput.EffectConstant} {
			if h.Supports(k) {
				kind = k
				break
			}
		}
	}

	ff := &d.ff
	if left == 0 && right == 0 {
		if ff.active && ff.effectID >= 0 {
			err := h.Destroy(ff.effectID)
			ff.effectID = -1
			ff.active = false
			return err
		}
		ff.active = false
		return nil
	}

	if ff.active && ff.effectID >= 0 && ff.effectKind == kind {
		return h.Update(ff.effectID, kind, left, right)
	}
	if ff.active && ff.effectID >= 0 {
		_ = h.Destroy(ff.effectID)
		ff.effectID = -1
	}
	id, err := h.Create(kind, left, right)
	if err != nil {
		ff.active = false
		return err
	}
	ff.effectID = id
	ff.effectKind = kind
	ff.active = true
	return nil
}
