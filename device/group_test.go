package device

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/ledtrigger/led"
	"lautenbacher.net/ledtrigger/trigger"
)

func TestGroup_AddRemove(t *testing.T) {
	g := NewGroup("desk")
	assert.Equal(t, "desk", g.UID())

	require.NoError(t, g.Add(NewDebugDevice("b", 1, nil)))
	require.NoError(t, g.Add(NewDebugDevice("a", 1, nil)))
	assert.ErrorIs(t, g.Add(NewDebugDevice("a", 1, nil)), ErrDuplicateDevice)

	devices := g.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "a", devices[0].UID(), "devices are ordered by uid")
	assert.Equal(t, "b", devices[1].UID())

	_, ok := g.Device("b")
	assert.True(t, ok)
	assert.True(t, g.Remove("b"))
	assert.False(t, g.Remove("b"))
	_, ok = g.Device("b")
	assert.False(t, ok)
}

func TestGroup_OnUpdateSendsAllLeds(t *testing.T) {
	var got []led.Led
	d := NewDebugDevice("debug0", 3, func(leds []led.Led) { got = leds })
	g := NewGroup("desk")
	require.NoError(t, g.Add(d))

	require.NoError(t, d.SetLeds([]led.Led{{Index: 2, Blue: 50}}))
	require.NoError(t, g.OnUpdate())

	assert.Equal(t, uint64(1), g.Updates())
	require.Len(t, got, 3, "every LED is considered changed")
	assert.Equal(t, float64(50), got[2].Blue)
}

func TestGroup_FailingDeviceIsIsolated(t *testing.T) {
	boom := errors.New("boom")
	var healthy atomic.Int32
	g := NewGroup("desk")
	require.NoError(t, g.Add(NewStripDevice("a-strip", 1, newWs2801Encoder(1, [3]float64{1, 1, 1}), &recordingBus{err: boom})))
	require.NoError(t, g.Add(NewDebugDevice("b-panic", 1, func([]led.Led) { panic("bad sink") })))
	require.NoError(t, g.Add(NewDebugDevice("c-debug", 1, func([]led.Led) { healthy.Add(1) })))

	err := g.OnUpdate()
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "b-panic panicked")
	assert.Equal(t, int32(1), healthy.Load(), "a failing device must not starve the others")
}

func TestGroup_DrivenByTrigger(t *testing.T) {
	var updates atomic.Int32
	var last atomic.Value
	d := NewDebugDevice("debug0", 4, func(leds []led.Led) {
		updates.Add(1)
		last.Store(leds)
	})
	g := NewGroup("desk")
	require.NoError(t, g.Add(d))

	trig := trigger.New(trigger.WithName("desk"), trigger.WithPollTimeout(10*time.Millisecond), trigger.WithoutAutoStart())
	defer trig.Dispose()
	trig.Subscribe(g.UID(), g)
	require.NoError(t, trig.Start())

	// OnStartup flushes once
	assert.Eventually(t, func() bool { return updates.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.SetLeds([]led.Led{{Index: 0, Red: 10}}))
	trig.TriggerUpdate()
	assert.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, float64(10), last.Load().([]led.Led)[0].Red)

	// OnShutdown flushes once more
	trig.Stop()
	assert.Equal(t, int32(3), updates.Load())
	assert.Equal(t, uint64(1), g.Updates())
}
