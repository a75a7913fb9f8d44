// Package settings persists the device, assignment and mapping graph
// as a single XML document next to the executable.
package settings

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ThreeDeeJay/padforge/hostinput"
)

// FileName is the primary settings document; LegacyFileName is read
// when the primary is absent.
const (
	FileName       = "PadForge.xml"
	LegacyFileName = "Settings.xml"
)

// File is the root PadForgeSettings document. The four children keep
// a fixed order: devices, user settings, pad settings, app settings.
type File struct {
	XMLName      xml.Name      `xml:"PadForgeSettings"`
	Devices      []DeviceEntry `xml:"Devices>Device"`
	UserSettings []UserSetting `xml:"UserSettings>Setting"`
	PadSettings  []PadSetting  `xml:"PadSettings>PadSetting"`
	App          AppSettings   `xml:"AppSettings"`
}

// DeviceEntry is one serialised PhysicalDevice identity.
type DeviceEntry struct {
	InstanceID string `xml:"InstanceId,attr"`
	ProductID  string `xml:"ProductId,attr"`
	Name       string `xml:"Name,attr"`
	Vendor     uint16 `xml:"Vid,attr"`
	Product    uint16 `xml:"Pid,attr"`
	Class      int    `xml:"Class,attr"`

	Axes    int  `xml:"Axes,attr"`
	Sliders int  `xml:"Sliders,attr"`
	Hats    int  `xml:"Hats,attr"`
	Buttons int  `xml:"Buttons,attr"`
	Rumble  bool `xml:"Rumble,attr"`
	Haptics bool `xml:"Haptics,attr"`
	Sensors bool `xml:"Sensors,attr"`

	Hidden  bool `xml:"Hidden,attr"`
	Enabled bool `xml:"Enabled,attr"`
}

// UserSetting links a device to a slot and, by checksum, to its
// PadSetting.
type UserSetting struct {
	InstanceID string `xml:"InstanceId,attr"`
	ProductID  string `xml:"ProductId,attr"`
	Slot       int    `xml:"Slot,attr"`
	Checksum   string `xml:"Checksum,attr"`
	Enabled    bool   `xml:"Enabled,attr"`
	SortOrder  int    `xml:"SortOrder,attr"`
	Created    string `xml:"Created,attr,omitempty"`
	Modified   string `xml:"Modified,attr,omitempty"`
}

// AppSettings carries engine options; the core only round-trips it.
type AppSettings struct {
	PollIntervalUS int    `xml:"PollIntervalUs,omitempty"`
	GraceCycles    int    `xml:"GraceCycles,omitempty"`
	BusAddr        string `xml:"BusAddr,omitempty"`
}

func (d *DeviceEntry) capabilities() hostinput.Capabilities {
	return hostinput.Capabilities{
		Axes:    d.Axes,
		Sliders: d.Sliders,
		Hats:    d.Hats,
		Buttons: d.Buttons,
		Rumble:  d.Rumble,
		Haptics: d.Haptics,
		Sensors: d.Sensors,
	}
}

func classFromInt(v int) hostinput.Class {
	if v < int(hostinput.ClassJoystick) || v > int(hostinput.ClassSupplemental) {
		return hostinput.ClassJoystick
	}
	return hostinput.Class(v)
}

// Timestamp formats a time the way the settings file stores it.
func Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Load reads the settings document from dir, falling back to the
// legacy name. A missing file yields an empty, valid File.
func Load(dir string) (*File, error) {
	for _, name := range []string{FileName, LegacyFileName} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("settings: read %s: %w", name, err)
		}
		var f File
		if err := xml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("settings: parse %s: %w", name, err)
		}
		return &f, nil
	}
	return &File{}, nil
}

// Save writes the document to dir under the primary name, replacing
// atomically via a sibling temp file.
func Save(dir string, f *File) error {
	data, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	tmp := filepath.Join(dir, FileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileName)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("settings: replace: %w", err)
	}
	return nil
}

// PadSettingByChecksum resolves the linkage from a UserSetting.
func (f *File) PadSettingByChecksum(sum string) *PadSetting {
	for i := range f.PadSettings {
		if f.PadSettings[i].Checksum == sum {
			return &f.PadSettings[i]
		}
	}
	return nil
}
