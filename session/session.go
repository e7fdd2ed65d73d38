// Package session owns one interactive pick session: pointer tracking,
// debounced hover lookups with a per-session cache, the click that issues
// the pick, and idempotent teardown.
//
// The coordinator never sees framework internals. It marks elements,
// sends correlated requests over a bridge.Transport and matches the
// responses by id, dropping any that were superseded.
package session

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/clipboard"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/report"
)

// DOM is the slice of the observed document the coordinator touches:
// marker attributes and bounding boxes.
type DOM interface {
	SetAttribute(el page.Value, name, value string)
	RemoveAttribute(el page.Value, name string)
	QuerySelectorAll(selector string) []page.Value
	Bounds(el page.Value) page.Rect
}

// Presenter renders the highlight overlay and the ancestry tooltip.
type Presenter interface {
	Open() error
	Highlight(r page.Rect)
	ShowTooltip(r page.Rect, framework string, components []string)
	HideTooltip()
	Close()
}

// Events is what an Input delivers.
type Events interface {
	Move(el page.Value)
	Click(el page.Value)
	Key(key string)
}

// Input installs pointer and keyboard observers that feed Events.
type Input interface {
	Install(ev Events) error
	Uninstall()
}

// Scheduler arms one-shot timers. stop prevents f from running if it has
// not started yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func())
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// DefaultDebounce is the quiet period before a hover lookup.
const DefaultDebounce = 120 * time.Millisecond

// Config wires a Coordinator.
type Config struct {
	DOM       DOM
	Presenter Presenter
	Input     Input
	Transport bridge.Transport
	Clipboard clipboard.Writer
	Sink      report.Sink

	// Debounce is the hover quiet period. Default: 120ms.
	Debounce time.Duration
	// Depth truncates pick paths and hover chains to the nearest entries;
	// 0 keeps all.
	Depth   int
	PageURL string

	// OnIdle runs on the Run goroutine each time picking mode ends.
	// pickPending is true when the session ended with a click whose
	// response is still outstanding. It must not block.
	OnIdle       func(pickPending bool)
	// OnStartError runs on the Run goroutine when Start cannot install
	// the input observers. The session stays idle.
	OnStartError func(err error)

	IDs       *bridge.IDs
	Scheduler Scheduler
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.IDs == nil {
		c.IDs = bridge.NewIDs(nil)
	}
	if c.Scheduler == nil {
		c.Scheduler = wallClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clipboard == nil {
		c.Clipboard = clipboard.Discard{}
	}
	if c.Sink == nil {
		c.Sink = report.Callback(nil)
	}
}

// State of a session.
type State int

const (
	Idle State = iota
	Picking
)

func (s State) String() string {
	if s == Picking {
		return "picking"
	}
	return "idle"
}
