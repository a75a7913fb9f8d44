package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDeeJay/padforge/hostinput"
	"github.com/ThreeDeeJay/padforge/hostinput/sdljoy"
	"github.com/ThreeDeeJay/padforge/internal/configpaths"
	"github.com/ThreeDeeJay/padforge/internal/engine"
	"github.com/ThreeDeeJay/padforge/internal/log"
	"github.com/ThreeDeeJay/padforge/internal/util"
	"github.com/ThreeDeeJay/padforge/settings"
	"github.com/ThreeDeeJay/padforge/virtualpad"
	"github.com/ThreeDeeJay/padforge/virtualpad/usbipbus"
	"github.com/ThreeDeeJay/padforge/xinput"
)

// Run starts the translation engine and blocks until interrupted.
type Run struct {
	SettingsDir  string        `help:"Directory holding the settings document (defaults to the executable's directory)" env:"PADFORGE_SETTINGS_DIR"`
	PollInterval time.Duration `help:"Pipeline cycle period" default:"1ms" env:"PADFORGE_POLL_INTERVAL"`
	GraceCycles  int           `help:"Inactive cycles a virtual pad survives before teardown" default:"10000" env:"PADFORGE_GRACE_CYCLES"`
	BusAddr      string        `help:"USB/IP listen address for the virtual pads" default:"127.0.0.1:3240" env:"PADFORGE_BUS_ADDR"`
	NoNative     bool          `help:"Skip the native XInput back-end"`
	AutoMap      bool          `help:"Create a default mapping for newly seen gamepads" default:"true" negatable:""`
}

// Run is called by kong when the run command executes.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := r.SettingsDir
	if dir == "" {
		if d, err := configpaths.ExecutableDir(); err == nil {
			dir = d
		} else {
			dir, _ = os.Getwd()
		}
	}

	host, err := sdljoy.New()
	if err != nil {
		return err
	}
	defer host.Close()

	var native xinput.Source
	if !r.NoNative {
		native, err = xinput.NewSource()
		if err != nil {
			logger.Info("native XInput back-end unavailable", "error", err)
			native = nil
		}
	}

	bus, err := usbipbus.Listen(r.BusAddr, logger)
	if err != nil {
		logger.Warn("virtual controller bus unavailable, running without output", "error", err)
		bus = nil
	} else {
		bus.SetRawLogger(rawLogger)
		defer bus.Close()
	}

	// A nil *Bus must reach the engine as a nil interface, not a
	// typed nil.
	var vbus virtualpad.Bus
	if bus != nil {
		vbus = bus
	}
	eng := engine.New(host, native, vbus, engine.Options{
		PollInterval: r.PollInterval,
		GraceCycles:  r.GraceCycles,
		Logger:       logger,
	})

	file, err := settings.Load(dir)
	if err != nil {
		logger.Warn("settings unreadable, starting clean", "error", err)
		file = &settings.File{}
	}
	eng.SeedDevices(file.DeviceSeeds())
	assignments, errs := file.Assignments()
	for _, e := range errs {
		logger.Warn("settings entry skipped", "error", e)
	}
	eng.SetAssignments(assignments)

	eng.Events().OnFrequency(func(hz float64) {
		logger.Log(context.Background(), log.LevelTrace, "pipeline frequency", "hz", hz)
	})

	// Device arrivals are handled off the pipeline thread: auto-map
	// fresh gamepads and persist the device graph.
	changed := make(chan struct{}, 1)
	eng.Events().OnDevicesChanged(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				r.syncSettings(eng, dir, logger)
			}
		}
	}()

	if util.IsRunFromGUI() {
		go func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		}()
	}

	err = eng.Run(ctx)
	r.syncSettings(eng, dir, logger)
	return err
}

// syncSettings assigns a default mapping to online, unassigned
// gamepad-class devices and saves the document.
func (r *Run) syncSettings(eng *engine.Engine, dir string, logger *slog.Logger) {
	devices := eng.Devices()
	assignments := eng.Assignments()

	if r.AutoMap {
		assigned := make(map[string]bool, len(assignments))
		for _, a := range assignments {
			assigned[a.DeviceID] = true
		}
		added := false
		for _, d := range devices {
			if !d.Online || assigned[d.InstanceID] || d.Class != hostinput.ClassGamepad {
				continue
			}
			assignments = append(assignments, engine.Assignment{
				DeviceID:  d.InstanceID,
				Slot:      freeSlot(assignments),
				Config:    settings.DefaultGamepadConfig(d.Name),
				Enabled:   true,
				SortOrder: len(assignments),
			})
			added = true
			logger.Info("auto-mapped new gamepad", "id", d.InstanceID, "name", d.Name)
		}
		if added {
			eng.SetAssignments(assignments)
		}
	}

	doc := settings.Collect(devices, assignments, settings.AppSettings{
		PollIntervalUS: int(r.PollInterval / time.Microsecond),
		GraceCycles:    r.GraceCycles,
		BusAddr:        r.BusAddr,
	})
	if err := settings.Save(dir, doc); err != nil {
		logger.Warn("settings save failed", "error", err)
	}
}

// freeSlot picks the lowest slot with no assignments yet, falling
// back to 0 when all four are taken.
func freeSlot(assignments []engine.Assignment) int {
	var used [engine.MaxSlots]bool
	for _, a := range assignments {
		if a.Slot >= 0 && a.Slot < engine.MaxSlots {
			used[a.Slot] = true
		}
	}
	for s, u := range used {
		if !u {
			return s
		}
	}
	return 0
}
