package engine

import (
	"sort"

	"github.com/ThreeDeeJay/padforge/mapping"
	"github.com/ThreeDeeJay/padforge/pad"
)

// Assignment links a device (by instance id) to a virtual slot and a
// mapping. A device may appear in several slots, a slot may be fed by
// several devices.
type Assignment struct {
	DeviceID  string
	Slot      int
	Config    *mapping.Config
	Enabled   bool
	SortOrder int
}

// liveAssignment is the pipeline's private view of one Assignment
// plus its output staging buffer (written by the map stage, read by
// the combiner on the same thread).
type liveAssignment struct {
	Assignment
	dev    *device
	staged pad.Gamepad
	active bool
}

// SetAssignments replaces the assignment list. The pipeline adopts
// the new version at its next cycle boundary, so a running cycle
// never sees a half-edited list.
func (e *Engine) SetAssignments(list []Assignment) {
	cp := make([]Assignment, len(list))
	copy(cp, list)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Slot != cp[j].Slot {
			return cp[i].Slot < cp[j].Slot
		}
		return cp[i].SortOrder < cp[j].SortOrder
	})
	e.pending.Store(&cp)
}

// Assignments returns a copy of the most recently published list.
func (e *Engine) Assignments() []Assignment {
	p := e.pending.Load()
	if p == nil {
		return nil
	}
	out := make([]Assignment, len(*p))
	copy(out, *p)
	return out
}

// adoptAssignments swaps in a newly published list, rebuilding the
// staging buffers and re-resolving device pointers. Called once per
// cycle at the end of stage 1; force rebuilds even an already adopted
// list when enumeration changed the device set.
func (e *Engine) adoptAssignments(force bool) {
	p := e.pending.Load()
	if p == nil {
		if e.live != nil {
			e.live = nil
			e.liveSrc = nil
		}
		return
	}
	if !force && p == e.liveSrc {
		return
	}
	live := make([]liveAssignment, 0, len(*p))
	for _, a := range *p {
		if a.Slot < 0 || a.Slot >= MaxSlots || a.Config == nil {
			continue
		}
		live = append(live, liveAssignment{Assignment: a, dev: e.byID[a.DeviceID]})
	}
	e.live = live
	e.liveSrc = p
}
