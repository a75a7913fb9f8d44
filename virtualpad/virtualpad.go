// Package virtualpad defines the virtual controller driver contract.
// Any user-mode virtual-gamepad bus that can surface an Xbox-360
// shaped device satisfies it; the in-tree implementation is the
// USB/IP bus under virtualpad/usbipbus.
package virtualpad

import (
	"errors"

	"github.com/ThreeDeeJay/padforge/pad"
)

// FeedbackFunc receives inbound vibration from the game, as byte
// motor magnitudes. It is invoked on a driver thread; implementations
// must publish via atomics and return quickly.
type FeedbackFunc func(left, right uint8)

// Controller is one virtual Xbox-360 controller.
type Controller interface {
	// Connect plugs the controller into the bus.
	Connect() error
	// Disconnect unplugs and releases the controller. The handle is
	// dead afterwards.
	Disconnect() error
	// Submit publishes one combined report.
	Submit(pad.Gamepad) error
	// SlotIndex reports the controller's runtime index on the bus,
	// 0-based. The index is fixed when the bus creates the controller,
	// so it is valid before Connect.
	SlotIndex() int
	// OnFeedback registers the rumble callback. Must be called
	// before Connect.
	OnFeedback(FeedbackFunc)
}

// Bus creates virtual controllers.
type Bus interface {
	Create() (Controller, error)
	Close() error
}

// ErrDriverUnavailable reports that no virtual-gamepad bus is usable
// on this system. Stage 5 disables itself when it sees this.
var ErrDriverUnavailable = errors.New("virtualpad: driver unavailable")
