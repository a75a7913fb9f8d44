package settings

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/mapping"
)

// PadSetting is the XML shape of one mapping configuration. The 21
// descriptor elements are named by the mapping output table, which is
// also what drives load/save, so the element set and the output enum
// can never drift apart.
type PadSetting struct {
	Checksum string
	Name     string

	Descriptors [mapping.OutputCount]string

	DeadZoneLeft      int
	AntiDeadZoneLeft  int
	DeadZoneRight     int
	AntiDeadZoneRight int

	ForceOverall   int
	ForceLeftGain  int
	ForceRightGain int
	ForceSwap      bool
	ForceEffect    int
}

// FromConfig serialises a mapping config.
func FromConfig(c *mapping.Config) PadSetting {
	p := PadSetting{
		Checksum:          c.Checksum(),
		Name:              c.Name,
		DeadZoneLeft:      c.DeadZoneLeft,
		AntiDeadZoneLeft:  c.AntiDeadZoneLeft,
		DeadZoneRight:     c.DeadZoneRight,
		AntiDeadZoneRight: c.AntiDeadZoneRight,
		ForceOverall:      c.ForceOverall,
		ForceLeftGain:     c.ForceLeftGain,
		ForceRightGain:    c.ForceRightGain,
		ForceSwap:         c.ForceSwap,
		ForceEffect:       int(c.ForceEffect),
	}
	for o := mapping.Output(0); o < mapping.OutputCount; o++ {
		p.Descriptors[o] = mapping.Outputs[o].Accessor(c).String()
	}
	return p
}

// ToConfig rebuilds the mapping config. Unparseable descriptors fall
// back to the empty binding; the errors are returned for the caller
// to surface.
func (p *PadSetting) ToConfig() (*mapping.Config, []error) {
	c := mapping.NewConfig(p.Name)
	c.DeadZoneLeft = p.DeadZoneLeft
	c.AntiDeadZoneLeft = p.AntiDeadZoneLeft
	c.DeadZoneRight = p.DeadZoneRight
	c.AntiDeadZoneRight = p.AntiDeadZoneRight
	c.ForceOverall = p.ForceOverall
	c.ForceLeftGain = p.ForceLeftGain
	c.ForceRightGain = p.ForceRightGain
	c.ForceSwap = p.ForceSwap
	c.ForceEffect = hostinput.EffectKind(p.ForceEffect)

	var errs []error
	for o := mapping.Output(0); o < mapping.OutputCount; o++ {
		if err := c.SetBinding(o, p.Descriptors[o]); err != nil {
			errs = append(errs, fmt.Errorf("settings: %s: %w", mapping.Outputs[o].Label, err))
		}
	}
	return c, errs
}

func encodeChild(enc *xml.Encoder, name, value string) error {
	return enc.EncodeElement(value, xml.StartElement{Name: xml.Name{Local: name}})
}

// MarshalXML writes the element with the checksum attribute, the
// bound descriptors by label, then the dead-zone and force blocks.
func (p PadSetting) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "Checksum"}, Value: p.Checksum})
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if p.Name != "" {
		if err := encodeChild(enc, "Name", p.Name); err != nil {
			return err
		}
	}
	for o := mapping.Output(0); o < mapping.OutputCount; o++ {
		if p.Descriptors[o] == "" {
			continue
		}
		if err := encodeChild(enc, mapping.Outputs[o].Label, p.Descriptors[o]); err != nil {
			return err
		}
	}
	ints := []struct {
		name  string
		value int
	}{
		{"DeadZoneLeft", p.DeadZoneLeft},
		{"AntiDeadZoneLeft", p.AntiDeadZoneLeft},
		{"DeadZoneRight", p.DeadZoneRight},
		{"AntiDeadZoneRight", p.AntiDeadZoneRight},
		{"ForceOverall", p.ForceOverall},
		{"ForceLeftGain", p.ForceLeftGain},
		{"ForceRightGain", p.ForceRightGain},
		{"ForceEffect", p.ForceEffect},
	}
	for _, f := range ints {
		if err := encodeChild(enc, f.name, strconv.Itoa(f.value)); err != nil {
			return err
		}
	}
	if err := encodeChild(enc, "ForceSwap", strconv.FormatBool(p.ForceSwap)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML is the inverse of MarshalXML; unknown elements are
// skipped so newer files load on older builds.
func (p *PadSetting) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	for _, a := range start.Attr {
		if a.Name.Local == "Checksum" {
			p.Checksum = a.Value
		}
	}
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var text string
			if err := dec.DecodeElement(&text, &t); err != nil {
				return err
			}
			if o, ok := mapping.ByLabel(t.Name.Local); ok {
				p.Descriptors[o] = text
				continue
			}
			switch t.Name.Local {
			case "Name":
				p.Name = text
			case "DeadZoneLeft":
				p.DeadZoneLeft = atoiOrZero(text)
			case "AntiDeadZoneLeft":
				p.AntiDeadZoneLeft = atoiOrZero(text)
			case "DeadZoneRight":
				p.DeadZoneRight = atoiOrZero(text)
			case "AntiDeadZoneRight":
				p.AntiDeadZoneRight = atoiOrZero(text)
			case "ForceOverall":
				p.ForceOverall = atoiOrZero(text)
			case "ForceLeftGain":
				p.ForceLeftGain = atoiOrZero(text)
			case "ForceRightGain":
				p.ForceRightGain = atoiOrZero(text)
			case "ForceEffect":
				p.ForceEffect = atoiOrZero(text)
			case "ForceSwap":
				p.ForceSwap = text == "true"
			}
		case xml.EndElement:
			return nil
		}
	}
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
