package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDeeJay/padforge/hostinput/sdljoy"
)

// Devices enumerates once and prints identity plus capabilities of
// everything the OS input library can see.
type Devices struct{}

func (d *Devices) Run(logger *slog.Logger) error {
	host, err := sdljoy.New()
	if err != nil {
		return err
	}
	defer host.Close()

	count, err := host.Count()
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("no input devices found")
		return nil
	}

	for i := 0; i < count; i++ {
		desc, err := host.Describe(i)
		if err != nil {
			logger.Warn("describe failed", "index", i, "error", err)
			continue
		}
		fmt.Printf("#%d %s [%04x:%04x] %s\n", i, desc.Name, desc.Vendor, desc.Product, desc.Class.String())

		dev, err := host.Open(i)
		if err != nil {
			logger.Warn("open failed", "index", i, "error", err)
			continue
		}
		caps := dev.Capabilities()
		fmt.Printf("    axes=%d sliders=%d hats=%d buttons=%d rumble=%t haptics=%t\n",
			caps.Axes, caps.Sliders, caps.Hats, caps.Buttons, caps.Rumble, caps.Haptics)
		_ = dev.Close()
	}
	return nil
}
