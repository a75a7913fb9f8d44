package settings

import (
	"fmt"
	"time"

	"github.com/ThreeDeeJay/padforge/internal/engine"
	"github.com/ThreeDeeJay/padforge/mapping"
)

// DeviceSeeds converts the Devices section into offline records for
// the engine, preserving hidden/enabled flags across restarts.
func (f *File) DeviceSeeds() []engine.DeviceSeed {
	out := make([]engine.DeviceSeed, 0, len(f.Devices))
	for _, d := range f.Devices {
		out = append(out, engine.DeviceSeed{
			InstanceID: d.InstanceID,
			ProductID:  d.ProductID,
			Name:       d.Name,
			Vendor:     d.Vendor,
			Product:    d.Product,
			Class:      classFromInt(d.Class),
			Caps:       d.capabilities(),
			Hidden:     d.Hidden,
			Enabled:    d.Enabled,
		})
	}
	return out
}

// Assignments resolves the UserSettings section against PadSettings
// by checksum. Identical configs are shared by reference; dangling
// checksums and bad descriptors are reported but don't block the
// rest.
func (f *File) Assignments() ([]engine.Assignment, []error) {
	var errs []error
	configs := make(map[string]*mapping.Config)

	out := make([]engine.Assignment, 0, len(f.UserSettings))
	for _, us := range f.UserSettings {
		cfg, ok := configs[us.Checksum]
		if !ok {
			ps := f.PadSettingByChecksum(us.Checksum)
			if ps == nil {
				errs = append(errs, fmt.Errorf("settings: no pad setting with checksum %s for device %s", us.Checksum, us.InstanceID))
				continue
			}
			var convErrs []error
			cfg, convErrs = ps.ToConfig()
			errs = append(errs, convErrs...)
			configs[us.Checksum] = cfg
		}
		out = append(out, engine.Assignment{
			DeviceID:  us.InstanceID,
			Slot:      us.Slot,
			Config:    cfg,
			Enabled:   us.Enabled,
			SortOrder: us.SortOrder,
		})
	}
	return out, errs
}

// Collect rebuilds the document from the engine's current state.
// PadSettings are deduplicated by checksum.
func Collect(devices []engine.DeviceSnapshot, assignments []engine.Assignment, app AppSettings) *File {
	f := &File{App: app}
	now := Timestamp(time.Now())

	for _, d := range devices {
		f.Devices = append(f.Devices, DeviceEntry{
			InstanceID: d.InstanceID,
			ProductID:  d.ProductID,
			Name:       d.Name,
			Vendor:     d.Vendor,
			Product:    d.Product,
			Class:      int(d.Class),
			Axes:       d.Caps.Axes,
			Sliders:    d.Caps.Sliders,
			Hats:       d.Caps.Hats,
			Buttons:    d.Caps.Buttons,
			Rumble:     d.Caps.Rumble,
			Haptics:    d.Caps.Haptics,
			Sensors:    d.Caps.Sensors,
			Hidden:     d.Hidden,
			Enabled:    d.Enabled,
		})
	}

	seen := make(map[string]bool)
	for _, a := range assignments {
		sum := a.Config.Checksum()
		if !seen[sum] {
			seen[sum] = true
			f.PadSettings = append(f.PadSettings, FromConfig(a.Config))
		}
		f.UserSettings = append(f.UserSettings, UserSetting{
			InstanceID: a.DeviceID,
			ProductID:  productIDFor(devices, a.DeviceID),
			Slot:       a.Slot,
			Checksum:   sum,
			Enabled:    a.Enabled,
			SortOrder:  a.SortOrder,
			Modified:   now,
		})
	}
	return f
}

func productIDFor(devices []engine.DeviceSnapshot, instanceID string) string {
	for _, d := range devices {
		if d.InstanceID == instanceID {
			return d.ProductID
		}
	}
	return ""
}

// DefaultGamepadConfig is the identity mapping installed for a newly
// seen gamepad-class device so it works before anyone edits anything:
// buttons in controller order, sticks on axes 0/1 and 3/4, triggers
// on axes 2 and 5, d-pad from hat 0.
func DefaultGamepadConfig(name string) *mapping.Config {
	c := mapping.NewConfig(name)
	bindings := map[mapping.Output]string{
		mapping.OutA:             "Button 0",
		mapping.OutB:             "Button 1",
		mapping.OutX:             "Button 2",
		mapping.OutY:             "Button 3",
		mapping.OutLeftShoulder:  "Button 4",
		mapping.OutRightShoulder: "Button 5",
		mapping.OutBack:          "Button 6",
		mapping.OutStart:         "Button 7",
		mapping.OutGuide:         "Button 8",
		mapping.OutLeftThumb:     "Button 9",
		mapping.OutRightThumb:    "Button 10",
		mapping.OutDPadUp:        "POV 0 Up",
		mapping.OutDPadDown:      "POV 0 Down",
		mapping.OutDPadLeft:      "POV 0 Left",
		mapping.OutDPadRight:     "POV 0 Right",
		mapping.OutLeftTrigger:   "Axis 2",
		mapping.OutRightTrigger:  "Axis 5",
		mapping.OutLeftStickX:    "Axis 0",
		mapping.OutLeftStickY:    "Axis 1",
		mapping.OutRightStickX:   "Axis 3",
		mapping.OutRightStickY:   "Axis 4",
	}
	for o, s := range bindings {
		// The table is static and the strings above parse; ignore
		// the impossible error.
		_ = c.SetBinding(o, s)
	}
	return c
}
