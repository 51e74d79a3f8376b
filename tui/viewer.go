// Package tui shows the LEDs of debug devices in the terminal and lets
// the user request updates from the keyboard.
package tui

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/exp/maps"

	"lautenbacher.net/ledtrigger/led"
	"lautenbacher.net/ledtrigger/logging"
	u "lautenbacher.net/ledtrigger/util"
)

// Viewer is a full screen terminal UI. Debug devices hand it their LEDs
// through the func returned by Sink.
type Viewer struct {
	app        *tview.Application
	ledDisplay *tview.TextView
	logView    *tview.TextView
	groups     []string
	trigger    func(group string)
	quit       func()

	// Guards frames
	mu     sync.Mutex
	frames map[string][]led.Led
	dirty  *u.Signal

	// Guards stopped and done
	runMu   sync.Mutex
	stopped bool
	// closed when Run returns; nil until Run is called
	done chan struct{}
	// closed after the first draw, once app.Stop takes effect
	ready     chan struct{}
	readyOnce sync.Once
}

// NewViewer creates the UI. Keys 1..9 call trigger for the respective
// entry of groups, 't' for all of them and 'q' calls quit.
func NewViewer(groups []string, trigger func(group string), quit func()) *Viewer {
	v := &Viewer{
		groups:  groups,
		trigger: trigger,
		quit:    quit,
		frames:  make(map[string][]led.Led),
		dirty:   u.NewSignal(),
		ready:   make(chan struct{}),
	}
	v.build()
	return v
}

func (v *Viewer) build() {
	layout := tview.NewFlex()
	layout.SetDirection(tview.FlexRow)

	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(" LED Trigger ").SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(helpText(v.groups))
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	stripe := tview.NewTextView()
	stripe.SetBorder(true).SetTitle(" Devices ")
	stripe.SetDynamicColors(true)
	stripe.SetBackgroundColor(tcell.ColorDarkSlateGray)

	logView := tview.NewTextView()
	logView.SetBorder(true).SetTitle(" Log ")
	logView.SetDynamicColors(true)
	logView.SetMaxLines(500)
	logView.ScrollToEnd()

	layout.AddItem(intro, 4, 1, false)
	layout.AddItem(stripe, 0, 2, false)
	layout.AddItem(logView, 0, 1, false)

	v.app = tview.NewApplication()
	v.app.SetRoot(layout, true)
	v.app.SetInputCapture(v.handleKey)
	v.app.SetAfterDrawFunc(func(tcell.Screen) {
		v.readyOnce.Do(func() { close(v.ready) })
	})
	logView.SetChangedFunc(func() { v.app.Draw() })
	v.ledDisplay = stripe
	v.logView = logView
}

func helpText(groups []string) string {
	var buf strings.Builder
	for i, g := range groups {
		if i == 9 {
			break
		}
		fmt.Fprintf(&buf, "[blue]%d[-] %s  ", i+1, tview.Escape(g))
	}
	buf.WriteString("\nHit [blue]t[-] to trigger all groups, [#ff0000]q[-] to exit")
	return buf.String()
}

func (v *Viewer) handleKey(event *tcell.EventKey) *tcell.EventKey {
	key := event.Rune()
	switch {
	case key >= '1' && key <= '9':
		if idx := int(key - '1'); idx < len(v.groups) && v.trigger != nil {
			v.trigger(v.groups[idx])
		}
	case key == 't' || key == 'T':
		if v.trigger != nil {
			for _, g := range v.groups {
				v.trigger(g)
			}
		}
	case key == 'q' || key == 'Q':
		if v.quit != nil {
			v.quit()
		}
	}
	return event
}

// Sink returns the function a debug device with the given uid forwards
// its updates to. It never blocks on the UI.
func (v *Viewer) Sink(uid string) func([]led.Led) {
	return func(leds []led.Led) {
		v.mu.Lock()
		v.frames[uid] = slices.Clone(leds)
		v.mu.Unlock()
		v.dirty.Set()
	}
}

// Run shows the UI and blocks until Stop is called. Log output goes to
// the log pane while the UI runs and is buffered afterwards. Run returns
// at once if Stop was called before.
func (v *Viewer) Run() error {
	v.runMu.Lock()
	if v.stopped {
		v.runMu.Unlock()
		return nil
	}
	done := make(chan struct{})
	v.done = done
	v.runMu.Unlock()
	defer close(done)

	if err := logging.SetOutput(tview.ANSIWriter(v.logView)); err != nil {
		return err
	}
	defer logging.BufferOutput()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.redraw(ctx)

	return v.app.Run()
}

// Stop ends Run and waits for it to return. A Run that has not
// installed its screen yet is stopped as soon as it has.
func (v *Viewer) Stop() {
	v.runMu.Lock()
	v.stopped = true
	done := v.done
	v.runMu.Unlock()
	if done == nil {
		return
	}

	select {
	case <-v.ready:
		v.app.Stop()
	case <-done:
		return
	}
	<-done
}

// redraw renders at most one pending frame set at a time, so a fast
// trigger cannot flood the UI event queue.
func (v *Viewer) redraw(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.dirty.Channel():
			v.mu.Lock()
			text := RenderFrames(v.frames)
			v.mu.Unlock()
			v.app.QueueUpdateDraw(func() {
				v.ledDisplay.SetText(text)
			})
		}
	}
}

// RenderFrames renders each device as a label line followed by two
// lines of bar glyphs, ordered by device uid.
func RenderFrames(frames map[string][]led.Led) string {
	var buf strings.Builder
	uids := maps.Keys(frames)
	slices.Sort(uids)
	for _, uid := range uids {
		top, bottom := renderLeds(frames[uid])
		fmt.Fprintf(&buf, " [yellow]%s[-]\n %s\n %s\n\n", tview.Escape(uid), top, bottom)
	}
	return buf.String()
}

var bars = []string{"▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderLeds draws every LED as a two row bar in its scaled color; the
// bar height follows the brightness.
func renderLeds(values []led.Led) (string, string) {
	var top, bottom strings.Builder
	for _, v := range values {
		if v.IsEmpty() {
			top.WriteString(" ")
			bottom.WriteString(" ")
			continue
		}
		color := "[" + v.HexColor() + "]"
		t, b := barGlyphs(v.Brightness())
		top.WriteString(color + t + "[-]")
		bottom.WriteString(color + b + "[-]")
	}
	return top.String(), bottom.String()
}

// barGlyphs maps a brightness of 0..255 to one of 16 bar heights.
func barGlyphs(brightness float64) (string, string) {
	level := int(math.Ceil(brightness / 255 * 16))
	level = min(max(level, 1), 16)
	if level <= 8 {
		return " ", bars[level-1]
	}
	return bars[level-9], "█"
}
