package engine

import "github.com/ThreeDeeJay/padforge/pad"

// mapStage is stage 3: translate each enabled assignment's device
// state through its mapping into the assignment's staging buffer.
func (e *Engine) mapStage() {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	for i := range e.live {
		la := &e.live[i]
		la.active = false
		if !la.Enabled || la.dev == nil || !la.dev.online || !la.dev.enabled {
			continue
		}
		la.Config.Apply(&la.dev.state, &la.staged)
		la.active = true
	}
}

// combine is stage 4: merge every active staging buffer targeting a
// slot into one combined value. Buttons OR together, triggers take
// the max, and each stick follows the contributing pair with the
// greatest magnitude; ties keep the lowest sort-order, which is the
// list order after the stable sort.
func (e *Engine) combine() {
	for slot := 0; slot < MaxSlots; slot++ {
		var out pad.Gamepad
		var bestL, bestR uint64
		active := false

		for i := range e.live {
			la := &e.live[i]
			if la.Slot != slot || !la.active {
				continue
			}
			active = true
			g := &la.staged

			out.Buttons |= g.Buttons
			if g.LT > out.LT {
				out.LT = g.LT
			}
			if g.RT > out.RT {
				out.RT = g.RT
			}
			if m := stickMagnitude(g.LX, g.LY); m > bestL {
				bestL = m
				out.LX, out.LY = g.LX, g.LY
			}
			if m := stickMagnitude(g.RX, g.RY); m > bestR {
				bestR = m
				out.RX, out.RY = g.RX, g.RY
			}
		}

		e.combined[slot] = out
		e.slotActive[slot] = active
	}
}

// stickMagnitude is the squared L2 magnitude; comparison doesn't need
// the root.
func stickMagnitude(x, y int16) uint64 {
	dx := int64(x)
	dy := int64(y)
	// The first contributor must beat "no contributor", so even a
	// centred pair counts as more than zero.
	return uint64(dx*dx+dy*dy) + 1
}

// readbackStage is stage 6: publish the cycle's combined view for
// display and telemetry consumers.
func (e *Engine) readbackStage() {
	e.readMu.Lock()
	e.readback = e.combined
	e.readMu.Unlock()
}
