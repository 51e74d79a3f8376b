package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/ledtrigger/led"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleFramesWS))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsFrames(t *testing.T) {
	hub, url := startHub(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	leds := led.NewStrip(2)
	leds[1].Green = 77
	hub.Sink("dbg")(leds)

	for _, c := range []*websocket.Conn{c1, c2} {
		var frame Frame
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, c.ReadJSON(&frame))
		assert.Equal(t, "dbg", frame.Device)
		assert.Equal(t, leds, frame.Leds)
		assert.NotZero(t, frame.T)
	}
}

func TestHub_CollapsesPendingFrames(t *testing.T) {
	hub := NewHub()
	sink := hub.Sink("dbg")
	for i := range 5 {
		sink([]led.Led{{Index: 0, Red: float64(i)}})
	}
	hub.Sink("other")([]led.Led{{Index: 0}})

	frames := hub.pending.Swap()
	require.Len(t, frames, 2)
	assert.Equal(t, 4.0, frames["dbg"].Leds[0].Red, "only the newest frame per device is kept")
}

func TestHub_RemovesClosedClients(t *testing.T) {
	hub, url := startHub(t)
	c := dial(t, url)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_FramesRoute(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer("", hub).Handler())
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/frames")
	assert.NotNil(t, conn)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
}
