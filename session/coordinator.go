package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/report"
)

// Coordinator runs the pick/hover state machine. Public methods are safe
// from any goroutine: they post onto the Run loop, which is the only place
// state is read or written.
type Coordinator struct {
	cfg   Config
	ctx   context.Context
	inbox chan func()
	done  chan struct{}
	post  func(func())

	state     State
	opened    bool
	installed bool

	// Hover sub-state.
	hovered   page.Value
	timerGen  uint64
	stopTimer func()
	hoverID   string
	hoverEl   page.Value
	hoverMark page.Value
	cache     map[any]cached

	// Outstanding pick; survives teardown until its response arrives.
	pickID   string
	pickMark page.Value
}

type cached struct {
	framework  string
	components []string
}

func New(cfg Config) *Coordinator {
	cfg.defaults()
	c := &Coordinator{
		cfg:   cfg,
		ctx:   context.Background(),
		inbox: make(chan func(), 64),
		done:  make(chan struct{}),
		cache: make(map[any]cached),
	}
	c.post = c.enqueue
	return c
}

var _ Events = (*Coordinator)(nil)

// Start enters picking mode.
func (c *Coordinator) Start() { c.post(c.start) }

// Move reports the element under the pointer.
func (c *Coordinator) Move(el page.Value) { c.post(func() { c.move(el) }) }

// Click picks el.
func (c *Coordinator) Click(el page.Value) { c.post(func() { c.click(el) }) }

// Key reports a key press; Escape cancels picking.
func (c *Coordinator) Key(key string) { c.post(func() { c.key(key) }) }

// Cancel leaves picking mode without issuing a request.
func (c *Coordinator) Cancel() { c.post(c.teardown) }

// Run serves inputs, timer fires and responses until ctx ends. On exit the
// session is torn down and any pending pick marker is cleared.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)

	resps := c.cfg.Transport.Responses()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case f := <-c.inbox:
			f()
		case resp, ok := <-resps:
			if !ok {
				c.cfg.Logger.Warn("session: transport closed")
				resps = nil
				continue
			}
			c.handleResponse(resp)
		}
	}
}

func (c *Coordinator) enqueue(f func()) {
	select {
	case c.inbox <- f:
	case <-c.done:
	}
}

// --- state machine, Run goroutine only ---

func (c *Coordinator) start() {
	if c.state == Picking {
		return
	}
	c.cache = make(map[any]cached)
	c.hoverID = ""
	c.hovered = nil

	if err := c.cfg.Presenter.Open(); err != nil {
		c.cfg.Logger.Warn("session: open overlay failed", "error", err)
	} else {
		c.opened = true
	}
	if err := c.cfg.Input.Install(c); err != nil {
		c.cfg.Logger.Warn("session: install input failed", "error", err)
		c.teardown()
		if c.cfg.OnStartError != nil {
			c.cfg.OnStartError(err)
		}
		return
	}
	c.installed = true
	c.state = Picking
	c.cfg.Logger.Debug("session: picking", "page", c.cfg.PageURL)
}

func (c *Coordinator) move(el page.Value) {
	if c.state != Picking || page.Nil(el) {
		return
	}
	c.cfg.Presenter.Highlight(c.cfg.DOM.Bounds(el))
	if sameElement(el, c.hovered) {
		return
	}
	c.hovered = el
	c.cancelTimer()
	c.cfg.Presenter.HideTooltip()
	c.armTimer()
}

func (c *Coordinator) armTimer() {
	c.timerGen++
	gen := c.timerGen
	c.stopTimer = c.cfg.Scheduler.AfterFunc(c.cfg.Debounce, func() {
		c.post(func() { c.fireHover(gen) })
	})
}

func (c *Coordinator) cancelTimer() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	// A fire already queued on the inbox is neutralised by the generation.
	c.timerGen++
}

func (c *Coordinator) fireHover(gen uint64) {
	if gen != c.timerGen || c.state != Picking || page.Nil(c.hovered) {
		return
	}
	c.stopTimer = nil
	el := c.hovered

	if hit, ok := c.cache[el.Identity()]; ok {
		c.cfg.Presenter.ShowTooltip(c.cfg.DOM.Bounds(el), hit.framework, hit.components)
		return
	}

	c.clearHoverMark()
	c.cfg.DOM.SetAttribute(el, bridge.HoverMarker, "true")
	c.hoverMark = el
	c.hoverEl = el
	c.hoverID = c.cfg.IDs.New(bridge.KindHover)
	c.send(bridge.Request{Kind: bridge.KindHover, CorrelationID: c.hoverID, Depth: c.cfg.Depth})
}

func (c *Coordinator) click(el page.Value) {
	if c.state != Picking || page.Nil(el) {
		return
	}
	for _, old := range c.cfg.DOM.QuerySelectorAll("[" + bridge.PickMarker + "]") {
		c.cfg.DOM.RemoveAttribute(old, bridge.PickMarker)
	}
	c.cfg.DOM.SetAttribute(el, bridge.PickMarker, "true")
	c.pickMark = el
	c.pickID = c.cfg.IDs.New(bridge.KindPick)

	c.teardown()
	c.send(bridge.Request{Kind: bridge.KindPick, CorrelationID: c.pickID, Depth: c.cfg.Depth})
}

func (c *Coordinator) key(key string) {
	if c.state == Picking && key == "Escape" {
		c.teardown()
	}
}

func (c *Coordinator) handleResponse(resp bridge.Response) {
	switch {
	case resp.CorrelationID == "":
	case resp.CorrelationID == c.hoverID:
		c.hoverResult(resp)
		return
	case resp.CorrelationID == c.pickID:
		c.pickResult(resp)
		return
	}
	c.cfg.Logger.Debug("session: stale response dropped", "id", resp.CorrelationID, "kind", resp.Kind)
}

func (c *Coordinator) hoverResult(resp bridge.Response) {
	c.hoverID = ""
	el := c.hoverEl
	c.hoverEl = nil
	c.clearHoverMark()
	if el == nil || resp.Error != "" {
		return
	}

	c.cache[el.Identity()] = cached{framework: resp.Framework, components: resp.Components}
	if c.state == Picking && sameElement(el, c.hovered) {
		c.cfg.Presenter.ShowTooltip(c.cfg.DOM.Bounds(el), resp.Framework, resp.Components)
	}
}

func (c *Coordinator) pickResult(resp bridge.Response) {
	out := report.Outcome{
		ID:        c.pickID,
		PageURL:   c.cfg.PageURL,
		Framework: resp.Framework,
		Timestamp: time.Now().UTC(),
	}
	c.pickID = ""
	c.clearPickMark()

	switch {
	case resp.Error != "":
		out.Error = resp.Error
	default:
		if err := c.cfg.Clipboard.Write(resp.Path); err != nil {
			out.Error = fmt.Sprintf("clipboard write failed: %v", err)
		} else {
			out.Path = resp.Path
		}
	}

	if err := c.cfg.Sink.Send(c.ctx, out); err != nil {
		c.cfg.Logger.Warn("session: report outcome failed", "id", out.ID, "error", err)
	}
	c.cfg.Logger.Info("session: pick resolved", "id", out.ID, "path", out.Path, "framework", out.Framework, "error", out.Error)
}

// teardown leaves picking mode. Every step is guarded, so repeated calls
// are no-ops. The pick marker is left for the outstanding pick.
func (c *Coordinator) teardown() {
	wasPicking := c.state == Picking
	c.cancelTimer()
	if c.installed {
		c.cfg.Input.Uninstall()
		c.installed = false
	}
	if c.opened {
		c.cfg.Presenter.Close()
		c.opened = false
	}
	c.clearHoverMark()
	c.hoverID = ""
	c.hoverEl = nil
	c.hovered = nil
	clear(c.cache)
	c.state = Idle
	if wasPicking && c.cfg.OnIdle != nil {
		c.cfg.OnIdle(c.pickID != "")
	}
}

func (c *Coordinator) shutdown() {
	c.teardown()
	c.pickID = ""
	c.clearPickMark()
}

func (c *Coordinator) clearHoverMark() {
	if c.hoverMark != nil {
		c.cfg.DOM.RemoveAttribute(c.hoverMark, bridge.HoverMarker)
		c.hoverMark = nil
	}
}

func (c *Coordinator) clearPickMark() {
	if c.pickMark != nil {
		c.cfg.DOM.RemoveAttribute(c.pickMark, bridge.PickMarker)
		c.pickMark = nil
	}
}

func (c *Coordinator) send(req bridge.Request) {
	if err := c.cfg.Transport.Send(c.ctx, req); err != nil {
		c.cfg.Logger.Warn("session: send request failed", "kind", req.Kind, "id", req.CorrelationID, "error", err)
	}
}

func sameElement(a, b page.Value) bool {
	if page.Nil(a) || page.Nil(b) {
		return false
	}
	return a.Identity() == b.Identity()
}
