package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"lautenbacher.net/ledtrigger/config"
	"lautenbacher.net/ledtrigger/device"
	"lautenbacher.net/ledtrigger/hardware"
	"lautenbacher.net/ledtrigger/led"
	"lautenbacher.net/ledtrigger/logging"
	"lautenbacher.net/ledtrigger/trigger"
	"lautenbacher.net/ledtrigger/tui"
	"lautenbacher.net/ledtrigger/web"
)

// groupRuntime is a configured device group with the trigger and the
// ticker driving it.
type groupRuntime struct {
	conf    config.GroupConfig
	trigger *trigger.UpdateTrigger
	devices *device.Group
	ticker  *trigger.Ticker
}

func (g *groupRuntime) start() error {
	if err := g.trigger.Start(); err != nil {
		return err
	}
	g.ticker.Start()
	return nil
}

func (g *groupRuntime) dispose() {
	g.ticker.Stop()
	g.trigger.Dispose()
}

// sinkFactory returns the function a debug device forwards updates to.
type sinkFactory func(dev config.DeviceConfig) func([]led.Led)

func main() {
	cfile := flag.String("config", config.CONFILE, "path to the config file")
	withTUI := flag.Bool("tui", false, "show the LEDs of debug devices in the terminal")
	flag.Parse()

	if err := run(*cfile, *withTUI); err != nil {
		fmt.Fprintf(os.Stderr, "ledtrigger: %v\n", err)
		os.Exit(1)
	}
}

func run(cfile string, withTUI bool) error {
	conf, err := config.ReadConfig(cfile)
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Options{
		Level:  conf.Logging.Level,
		Format: conf.Logging.Format,
		File:   conf.Logging.File,
		Buffer: withTUI,
	}); err != nil {
		return err
	}
	defer logging.Close()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ossignal)

	var bus hardware.Bus
	if conf.HasStrips() {
		bus, err = hardware.Open(hardware.Options{
			Library:   conf.Hardware.SPILibrary,
			Device:    conf.Hardware.SPIDevice,
			Frequency: conf.Hardware.SPIFrequency,
		})
		if err != nil {
			return fmt.Errorf("failed to open SPI bus: %w", err)
		}
		defer bus.Close()
	}

	var hub *web.Hub
	if conf.Web.Enabled {
		hub = web.NewHub()
	}
	var viewer *tui.Viewer
	var groups []*groupRuntime
	if withTUI {
		uids := make([]string, 0, len(conf.Groups))
		for _, g := range conf.Groups {
			uids = append(uids, g.UID)
		}
		viewer = tui.NewViewer(uids,
			func(uid string) {
				if g := findGroup(groups, uid); g != nil {
					g.trigger.TriggerUpdate()
				}
			},
			func() {
				select {
				case ossignal <- os.Interrupt:
				default:
				}
			})
	}

	groups, err = buildGroups(conf, bus, newSinkFactory(hub, viewer))
	if err != nil {
		return err
	}
	// triggers are disposed before the deferred bus.Close runs, so the
	// final flush still reaches the hardware
	defer disposeGroups(groups)
	for _, g := range groups {
		if err := g.start(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := config.Watch(ctx, cfile, func(c *config.Config) { applyRates(groups, c) }); err != nil {
			slog.Warn("Config reload disabled", "error", err)
		}
	}()

	if conf.Web.Enabled {
		server := web.NewServer(cfile, hub, webGroups(groups)...)
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx, conf.Web.Address); err != nil {
				slog.Error("HTTP server failed", "error", err)
			}
		}()
	}

	if viewer != nil {
		go func() {
			if err := viewer.Run(); err != nil {
				slog.Error("Error running TUI", "error", err)
			}
		}()
		// Stop waits for Run to return
		defer viewer.Stop()
	}

	slog.Info("ledtrigger running", "groups", len(groups), "config", cfile)
	sig := <-ossignal
	slog.Info("Shutting down", "signal", sig.String())
	return nil
}

// buildGroups creates the devices, triggers and tickers of all groups.
// Nothing is started yet.
func buildGroups(conf *config.Config, bus hardware.Bus, sinks sinkFactory) ([]*groupRuntime, error) {
	ret := make([]*groupRuntime, 0, len(conf.Groups))
	for _, gc := range conf.Groups {
		devices := device.NewGroup(gc.UID)
		for _, dc := range gc.Devices {
			dev, err := newDevice(conf.Hardware, dc, bus, sinks)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", gc.UID, err)
			}
			if err := devices.Add(dev); err != nil {
				return nil, err
			}
		}

		opts := []trigger.Option{
			trigger.WithName(gc.UID),
			trigger.WithPollTimeout(gc.PollTimeout),
			trigger.WithoutAutoStart(),
		}
		if gc.StatsWindow > 0 {
			opts = append(opts, trigger.WithStatsWindow(gc.StatsWindow))
		}
		trig := trigger.New(opts...)
		trig.Subscribe(gc.UID, devices)

		ret = append(ret, &groupRuntime{
			conf:    gc,
			trigger: trig,
			devices: devices,
			ticker:  trigger.NewTicker(trig, trigger.RateToInterval(gc.UpdateRate)),
		})
	}
	return ret, nil
}

type initialFiller interface {
	Fill(value led.Led)
}

func newDevice(hw config.HardwareConfig, dc config.DeviceConfig, bus hardware.Bus, sinks sinkFactory) (device.Device, error) {
	var dev device.Device
	switch dc.Type {
	case config.DeviceDebug:
		dev = device.NewDebugDevice(dc.UID, dc.LedCount, sinks(dc))
	case config.DeviceAPA102, config.DeviceWS2801:
		if bus == nil {
			return nil, fmt.Errorf("device %s needs an SPI bus", dc.UID)
		}
		enc, err := device.NewEncoder(dc.Type, dc.LedCount, hw.ColorCorrection, hw.APA102Brightness)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dc.UID, err)
		}
		dev = device.NewStripDevice(dc.UID, dc.LedCount, enc, bus)
	default:
		return nil, fmt.Errorf("device %s: unknown type %s", dc.UID, dc.Type)
	}

	if len(dc.InitialRGB) == 3 {
		if f, ok := dev.(initialFiller); ok {
			f.Fill(led.Led{Red: dc.InitialRGB[0], Green: dc.InitialRGB[1], Blue: dc.InitialRGB[2]})
		}
	}
	return dev, nil
}

// newSinkFactory resolves the configured sink of a debug device. Sinks
// whose target is not running fall back to logging.
func newSinkFactory(hub *web.Hub, viewer *tui.Viewer) sinkFactory {
	return func(dev config.DeviceConfig) func([]led.Led) {
		switch dev.Sink {
		case config.SinkNone:
			return nil
		case config.SinkTUI:
			if viewer != nil {
				return viewer.Sink(dev.UID)
			}
			slog.Warn("TUI not enabled, logging updates instead", "device", dev.UID)
		case config.SinkWeb:
			if hub != nil {
				return hub.Sink(dev.UID)
			}
			slog.Warn("Web server not enabled, logging updates instead", "device", dev.UID)
		}
		return logSink(dev.UID)
	}
}

func logSink(uid string) func([]led.Led) {
	return func(leds []led.Led) {
		lit := 0
		for _, l := range leds {
			if !l.IsEmpty() {
				lit++
			}
		}
		slog.Debug("Debug device updated", "device", uid, "leds", len(leds), "lit", lit)
	}
}

// applyRates hands changed update rates of a reloaded config to the
// running tickers. Other changes need a restart.
func applyRates(groups []*groupRuntime, conf *config.Config) {
	for _, g := range groups {
		gc, ok := conf.Group(g.conf.UID)
		if !ok {
			slog.Warn("Group removed from config, restart to apply", "group", g.conf.UID)
			continue
		}
		if gc.UpdateRate != g.conf.UpdateRate {
			slog.Info("Update rate changed", "group", gc.UID, "from", g.conf.UpdateRate, "to", gc.UpdateRate)
			g.conf.UpdateRate = gc.UpdateRate
			g.ticker.SetInterval(trigger.RateToInterval(gc.UpdateRate))
		}
	}
}

func findGroup(groups []*groupRuntime, uid string) *groupRuntime {
	for _, g := range groups {
		if g.conf.UID == uid {
			return g
		}
	}
	return nil
}

func webGroups(groups []*groupRuntime) []web.Group {
	ret := make([]web.Group, 0, len(groups))
	for _, g := range groups {
		ret = append(ret, web.Group{Trigger: g.trigger, Devices: g.devices})
	}
	return ret
}

// disposeGroups shuts groups down in reverse order of creation.
func disposeGroups(groups []*groupRuntime) {
	for _, g := range slices.Backward(groups) {
		g.dispose()
	}
}
