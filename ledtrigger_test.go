package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/ledtrigger/config"
	"lautenbacher.net/ledtrigger/led"
	"lautenbacher.net/ledtrigger/trigger"
	"lautenbacher.net/ledtrigger/web"
)

type mockBus struct {
	mu     sync.Mutex
	frames [][]byte
}

func (m *mockBus) Tx(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, append([]byte(nil), data...))
	return nil
}

func (m *mockBus) Close() error { return nil }

func (m *mockBus) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

type mockSinks struct {
	mu      sync.Mutex
	updates map[string][][]led.Led
}

func (m *mockSinks) factory(dev config.DeviceConfig) func([]led.Led) {
	return func(leds []led.Led) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.updates[dev.UID] = append(m.updates[dev.UID], leds)
	}
}

func (m *mockSinks) get(uid string) [][]led.Led {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[uid]
}

func testConfig() *config.Config {
	return &config.Config{
		Groups: []config.GroupConfig{
			{
				UID:         "hall",
				UpdateRate:  0,
				PollTimeout: 10 * time.Millisecond,
				StatsWindow: 5,
				Devices: []config.DeviceConfig{
					{UID: "hall-strip", Type: config.DeviceWS2801, LedCount: 2},
					{UID: "hall-debug", Type: config.DeviceDebug, LedCount: 3, Sink: config.SinkLog, InitialRGB: []float64{1, 2, 3}},
				},
			},
			{
				UID:         "desk",
				UpdateRate:  50,
				PollTimeout: 10 * time.Millisecond,
				Devices: []config.DeviceConfig{
					{UID: "desk-debug", Type: config.DeviceDebug, LedCount: 1, Sink: config.SinkNone},
				},
			},
		},
		Hardware: config.HardwareConfig{APA102Brightness: 31},
	}
}

func TestBuildGroups(t *testing.T) {
	bus := &mockBus{}
	sinks := &mockSinks{updates: map[string][][]led.Led{}}

	groups, err := buildGroups(testConfig(), bus, sinks.factory)
	require.NoError(t, err)
	t.Cleanup(func() { disposeGroups(groups) })
	require.Len(t, groups, 2)

	hall := groups[0]
	assert.Equal(t, "hall", hall.trigger.Name())
	assert.Equal(t, trigger.StateUninitialized, hall.trigger.State(), "groups are not started by buildGroups")
	assert.Equal(t, 1, hall.trigger.ConsumerCount())
	assert.Len(t, hall.devices.Devices(), 2)
	assert.Equal(t, time.Duration(0), hall.ticker.Interval())
	assert.Equal(t, 20*time.Millisecond, groups[1].ticker.Interval())

	require.NoError(t, hall.start())
	hall.trigger.TriggerUpdate()
	assert.Eventually(t, func() bool { return len(sinks.get("hall-debug")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return bus.count() == 2 }, time.Second, 5*time.Millisecond, "startup flush and one update")

	first := sinks.get("hall-debug")[0]
	assert.Equal(t, led.Led{Index: 2, Red: 1, Green: 2, Blue: 3}, first[2], "initial color is applied")
	assert.Eventually(t, func() bool { return hall.trigger.Stats().Cycles == 1 }, time.Second, 5*time.Millisecond)
}

func TestBuildGroups_StripWithoutBus(t *testing.T) {
	_, err := buildGroups(testConfig(), nil, func(config.DeviceConfig) func([]led.Led) { return nil })
	assert.ErrorContains(t, err, "hall-strip needs an SPI bus")
}

func TestTickerDrivesGroup(t *testing.T) {
	sinks := &mockSinks{updates: map[string][][]led.Led{}}
	conf := testConfig()
	conf.Groups = conf.Groups[1:]
	conf.Groups[0].Devices[0].Sink = config.SinkLog

	groups, err := buildGroups(conf, nil, sinks.factory)
	require.NoError(t, err)
	require.NoError(t, groups[0].start())

	assert.Eventually(t, func() bool { return len(sinks.get("desk-debug")) >= 4 }, 2*time.Second, 5*time.Millisecond)

	disposeGroups(groups)
	assert.Equal(t, trigger.StateDisposed, groups[0].trigger.State())
	n := len(sinks.get("desk-debug"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, len(sinks.get("desk-debug")), "nothing runs after dispose")
}

func TestApplyRates(t *testing.T) {
	groups, err := buildGroups(testConfig(), &mockBus{}, func(config.DeviceConfig) func([]led.Led) { return nil })
	require.NoError(t, err)
	t.Cleanup(func() { disposeGroups(groups) })

	conf := testConfig()
	conf.Groups[0].UpdateRate = 10
	conf.Groups = conf.Groups[:1]
	applyRates(groups, conf)

	assert.Equal(t, 100*time.Millisecond, groups[0].ticker.Interval())
	assert.Equal(t, 10.0, groups[0].conf.UpdateRate)
	assert.Equal(t, 20*time.Millisecond, groups[1].ticker.Interval(), "groups missing from the new config keep their rate")
}

func TestSinkFactory(t *testing.T) {
	hub := web.NewHub()
	factory := newSinkFactory(hub, nil)

	assert.Nil(t, factory(config.DeviceConfig{UID: "a", Sink: config.SinkNone}))
	assert.NotNil(t, factory(config.DeviceConfig{UID: "b", Sink: config.SinkLog}))
	assert.NotNil(t, factory(config.DeviceConfig{UID: "c", Sink: config.SinkTUI}), "falls back to logging without TUI")

	webSink := factory(config.DeviceConfig{UID: "d", Sink: config.SinkWeb})
	require.NotNil(t, webSink)
	webSink([]led.Led{{Index: 0, Red: 1}})
	assert.Equal(t, 0, hub.ClientCount())

	noWeb := newSinkFactory(nil, nil)
	assert.NotNil(t, noWeb(config.DeviceConfig{UID: "e", Sink: config.SinkWeb}))
}

func TestFindGroup(t *testing.T) {
	groups, err := buildGroups(testConfig(), &mockBus{}, func(config.DeviceConfig) func([]led.Led) { return nil })
	require.NoError(t, err)
	t.Cleanup(func() { disposeGroups(groups) })

	assert.Equal(t, groups[1], findGroup(groups, "desk"))
	assert.Nil(t, findGroup(groups, "attic"))
	assert.Len(t, webGroups(groups), 2)
}
