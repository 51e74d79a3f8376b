package device

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/maps"
)

// Group is a set of devices refreshed together. It is registered as a
// consumer on one update trigger; every update hands each device its
// complete set of LEDs.
type Group struct {
	uid string
	// Guards devices
	mu      sync.RWMutex
	devices map[string]Device
	updates atomic.Uint64
}

func NewGroup(uid string) *Group {
	return &Group{
		uid:     uid,
		devices: make(map[string]Device),
	}
}

func (g *Group) UID() string {
	return g.uid
}

// Add puts d into the group. UIDs must be unique within the group.
func (g *Group) Add(d Device) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.devices[d.UID()]; exists {
		return fmt.Errorf("group %s: %w: %s", g.uid, ErrDuplicateDevice, d.UID())
	}
	g.devices[d.UID()] = d
	return nil
}

// Remove takes the device with the given uid out of the group.
func (g *Group) Remove(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.devices[uid]; !exists {
		return false
	}
	delete(g.devices, uid)
	return true
}

func (g *Group) Device(uid string) (Device, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.devices[uid]
	return d, ok
}

// Devices returns the members ordered by UID.
func (g *Group) Devices() []Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ret := make([]Device, 0, len(g.devices))
	uids := maps.Keys(g.devices)
	slices.Sort(uids)
	for _, uid := range uids {
		ret = append(ret, g.devices[uid])
	}
	return ret
}

// Updates returns how many update cycles the group has run.
func (g *Group) Updates() uint64 {
	return g.updates.Load()
}

// OnStartup pushes the current state to every device so the hardware
// matches what was queued before the trigger started.
func (g *Group) OnStartup() {
	slog.Info("Device group starting", "group", g.uid, "devices", len(g.Devices()))
	if err := g.flush(); err != nil {
		slog.Warn("Initial flush failed", "group", g.uid, "error", err)
	}
}

// OnUpdate refreshes every device. Failing devices do not keep the
// others from being updated; their errors are joined.
func (g *Group) OnUpdate() error {
	g.updates.Add(1)
	return g.flush()
}

// OnShutdown writes the final state once more after the trigger
// stopped.
func (g *Group) OnShutdown() {
	if err := g.flush(); err != nil {
		slog.Warn("Final flush failed", "group", g.uid, "error", err)
	}
	slog.Info("Device group stopped", "group", g.uid, "updates", g.updates.Load())
}

func (g *Group) flush() error {
	var errs []error
	for _, d := range g.Devices() {
		if err := updateDevice(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func updateDevice(d Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device %s panicked: %v", d.UID(), r)
		}
	}()
	if err := d.Update(d.Leds()); err != nil {
		return fmt.Errorf("device %s: %w", d.UID(), err)
	}
	return nil
}
