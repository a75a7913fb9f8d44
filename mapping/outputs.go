package mapping

import "github.com/ThreeDeeJay/padforge/pad"

// Output enumerates the 21 Xbox outputs a mapping binds.
type Output int

const (
	OutA Output = iota
	OutB
	OutX
	OutY
	OutLeftShoulder
	OutRightShoulder
	OutBack
	OutStart
	OutGuide
	OutLeftThumb
	OutRightThumb
	OutDPadUp
	OutDPadDown
	OutDPadLeft
	OutDPadRight
	OutLeftTrigger
	OutRightTrigger
	OutLeftStickX
	OutLeftStickY
	OutRightStickX
	OutRightStickY

	OutputCount
)

// Target classifies how an output consumes its processed value.
type Target int

const (
	TargetButton Target = iota
	TargetTrigger
	TargetStick
)

// OutputInfo is one row of the static output table. Mask is the pad
// button bit for button targets. The accessor returns the binding
// slot inside a Config; mapping load/save walks this table rather
// than naming struct fields at runtime.
type OutputInfo struct {
	Label    string
	Target   Target
	Mask     uint16
	Accessor func(*Config) *Descriptor
}

// Outputs is the static table keyed by Output.
var Outputs = [OutputCount]OutputInfo{
	OutA:             {Label: "ButtonA", Target: TargetButton, Mask: pad.ButtonA, Accessor: bind(OutA)},
	OutB:             {Label: "ButtonB", Target: TargetButton, Mask: pad.ButtonB, Accessor: bind(OutB)},
	OutX:             {Label: "ButtonX", Target: TargetButton, Mask: pad.ButtonX, Accessor: bind(OutX)},
	OutY:             {Label: "ButtonY", Target: TargetButton, Mask: pad.ButtonY, Accessor: bind(OutY)},
	OutLeftShoulder:  {Label: "LeftShoulder", Target: TargetButton, Mask: pad.ButtonLShoulder, Accessor: bind(OutLeftShoulder)},
	OutRightShoulder: {Label: "RightShoulder", Target: TargetButton, Mask: pad.ButtonRShoulder, Accessor: bind(OutRightShoulder)},
	OutBack:          {Label: "ButtonBack", Target: TargetButton, Mask: pad.ButtonBack, Accessor: bind(OutBack)},
	OutStart:         {Label: "ButtonStart", Target: TargetButton, Mask: pad.ButtonStart, Accessor: bind(OutStart)},
	OutGuide:         {Label: "ButtonGuide", Target: TargetButton, Mask: pad.ButtonGuide, Accessor: bind(OutGuide)},
	OutLeftThumb:     {Label: "LeftThumbButton", Target: TargetButton, Mask: pad.ButtonLThumb, Accessor: bind(OutLeftThumb)},
	OutRightThumb:    {Label: "RightThumbButton", Target: TargetButton, Mask: pad.ButtonRThumb, Accessor: bind(OutRightThumb)},
	OutDPadUp:        {Label: "DPadUp", Target: TargetButton, Mask: pad.ButtonDPadUp, Accessor: bind(OutDPadUp)},
	OutDPadDown:      {Label: "DPadDown", Target: TargetButton, Mask: pad.ButtonDPadDown, Accessor: bind(OutDPadDown)},
	OutDPadLeft:      {Label: "DPadLeft", Target: TargetButton, Mask: pad.ButtonDPadLeft, Accessor: bind(OutDPadLeft)},
	OutDPadRight:     {Label: "DPadRight", Target: TargetButton, Mask: pad.ButtonDPadRight, Accessor: bind(OutDPadRight)},
	OutLeftTrigger:   {Label: "LeftTrigger", Target: TargetTrigger, Accessor: bind(OutLeftTrigger)},
	OutRightTrigger:  {Label: "RightTrigger", Target: TargetTrigger, Accessor: bind(OutRightTrigger)},
	OutLeftStickX:    {Label: "LeftThumbAxisX", Target: TargetStick, Accessor: bind(OutLeftStickX)},
	OutLeftStickY:    {Label: "LeftThumbAxisY", Target: TargetStick, Accessor: bind(OutLeftStickY)},
	OutRightStickX:   {Label: "RightThumbAxisX", Target: TargetStick, Accessor: bind(OutRightStickX)},
	OutRightStickY:   {Label: "RightThumbAxisY", Target: TargetStick, Accessor: bind(OutRightStickY)},
}

func bind(o Output) func(*Config) *Descriptor {
	return func(c *Config) *Descriptor { return &c.Bindings[o] }
}

// ByLabel resolves a table row by its label; ok is false for unknown
// labels.
func ByLabel(label string) (Output, bool) {
	for o := Output(0); o < OutputCount; o++ {
		if Outputs[o].Label == label {
			return o, true
		}
	}
	return 0, false
}
