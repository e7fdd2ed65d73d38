package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/clipboard"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/sandbox"
	"github.com/hazyhaar/compick/report"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return func() { t.stopped = true }
}

// elapse fires every timer still armed, as if the debounce window passed.
func (s *fakeScheduler) elapse() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.f()
			n++
		}
	}
	return n
}

func (s *fakeScheduler) armed() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type tooltip struct {
	rect       page.Rect
	framework  string
	components []string
}

type fakePresenter struct {
	opens, closes, hides int
	highlights           []page.Rect
	tooltips             []tooltip
	onTooltip            func(tooltip)
}

func (p *fakePresenter) Open() error           { p.opens++; return nil }
func (p *fakePresenter) Highlight(r page.Rect) { p.highlights = append(p.highlights, r) }
func (p *fakePresenter) HideTooltip()          { p.hides++ }
func (p *fakePresenter) Close()                { p.closes++ }

func (p *fakePresenter) ShowTooltip(r page.Rect, fw string, comps []string) {
	tt := tooltip{rect: r, framework: fw, components: comps}
	p.tooltips = append(p.tooltips, tt)
	if p.onTooltip != nil {
		p.onTooltip(tt)
	}
}

type fakeInput struct {
	installs, uninstalls int
	ev                   Events
	err                  error
}

func (i *fakeInput) Install(ev Events) error {
	i.installs++
	if i.err != nil {
		return i.err
	}
	i.ev = ev
	return nil
}
func (i *fakeInput) Uninstall()              { i.uninstalls++ }

type fakeTransport struct {
	sent  []bridge.Request
	resps chan bridge.Response
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{resps: make(chan bridge.Response, 8)}
}

func (t *fakeTransport) Send(_ context.Context, req bridge.Request) error {
	t.sent = append(t.sent, req)
	return nil
}
func (t *fakeTransport) Responses() <-chan bridge.Response { return t.resps }
func (t *fakeTransport) Close() error                      { return nil }

func (t *fakeTransport) last() bridge.Request {
	if len(t.sent) == 0 {
		return bridge.Request{}
	}
	return t.sent[len(t.sent)-1]
}

// rig is a coordinator driven synchronously: posted work runs inline and
// timers fire only when the test says so.
type rig struct {
	c     *Coordinator
	doc   *sandbox.Document
	sched *fakeScheduler
	pres  *fakePresenter
	input *fakeInput
	tr    *fakeTransport
	clip  *clipboard.Memory
	out   []report.Outcome
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gridHTML renders ten sibling buttons #e0..#e9 with distinct rects.
func gridHTML() string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"root\">")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, `<button id="e%d" data-rect="%d,0,10,10">%d</button>`, i, i*10, i)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func newRig(t *testing.T) *rig {
	t.Helper()
	doc, err := sandbox.Load(gridHTML(), "")
	if err != nil {
		t.Fatalf("sandbox.Load: %v", err)
	}
	r := &rig{
		doc:   doc,
		sched: &fakeScheduler{},
		pres:  &fakePresenter{},
		input: &fakeInput{},
		tr:    newFakeTransport(),
		clip:  &clipboard.Memory{},
	}
	r.c = New(Config{
		DOM:       doc,
		Presenter: r.pres,
		Input:     r.input,
		Transport: r.tr,
		Clipboard: r.clip,
		Sink: report.Callback(func(_ context.Context, o report.Outcome) error {
			r.out = append(r.out, o)
			return nil
		}),
		Depth:     3,
		PageURL:   "https://example.test/",
		IDs:       bridge.NewIDs(bridge.Sequence()),
		Scheduler: r.sched,
		Logger:    quietLogger(),
	})
	r.c.post = func(f func()) { f() }
	return r
}

func (r *rig) el(t *testing.T, i int) page.Value {
	t.Helper()
	v := r.doc.QuerySelector(fmt.Sprintf("#e%d", i))
	if page.Nil(v) {
		t.Fatalf("no element #e%d", i)
	}
	return v
}

func (r *rig) marked(marker string) []string {
	var ids []string
	for _, el := range r.doc.QuerySelectorAll("[" + marker + "]") {
		ids = append(ids, el.Get("id").Str())
	}
	return ids
}
