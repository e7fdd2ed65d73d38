package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/cdp"
	"github.com/hazyhaar/compick/session"
)

//go:embed picker.js
var pickerJS string

// BindingName is the runtime binding the injected listeners report through.
const BindingName = "__compick_binding"

const (
	jsInvoke = `(method, ...args) => window.__compick && window.__compick[method](...args)`
	jsRef    = `window.__compick ? window.__compick.ref(%d) : null`
)

// Picker installs pointer and keyboard listeners in a tab and draws the
// highlight overlay. It is the session.Input and session.Presenter of a
// live pick.
type Picker struct {
	page   *rod.Page
	doc    *cdp.Document
	logger *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

var (
	_ session.Input     = (*Picker)(nil)
	_ session.Presenter = (*Picker)(nil)
)

// NewPicker prepares doc's page for picking. Listeners stay idle until
// Install. ctx bounds the listener goroutine.
func NewPicker(ctx context.Context, doc *cdp.Document, logger *slog.Logger) (*Picker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := doc.Page()
	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(p); err != nil {
		return nil, fmt.Errorf("browser: add binding: %w", err)
	}
	pk := &Picker{page: p, doc: doc, logger: logger, ctx: ctx}
	if err := pk.inject(); err != nil {
		return nil, err
	}
	return pk, nil
}

// inject is idempotent page-side; it runs again after navigations wipe the
// previous script.
func (pk *Picker) inject() error {
	if _, err := pk.page.Evaluate(rod.Eval(pickerJS)); err != nil {
		return fmt.Errorf("browser: inject picker.js: %w", err)
	}
	return nil
}

// Install starts forwarding page events to ev.
func (pk *Picker) Install(ev session.Events) error {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	if pk.cancel != nil {
		return nil
	}
	if err := pk.inject(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(pk.ctx)
	wait := pk.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != BindingName || ctx.Err() != nil {
			return
		}
		pk.dispatch(ctx, ev, e.Payload)
	})
	go wait()

	if err := pk.invoke("install"); err != nil {
		cancel()
		return err
	}
	pk.cancel = cancel
	return nil
}

// Uninstall removes the listeners and stops forwarding. It does not wait
// for an event already being delivered, since delivery may be blocked on
// the caller.
func (pk *Picker) Uninstall() {
	pk.mu.Lock()
	defer pk.mu.Unlock()
	if pk.cancel == nil {
		return
	}
	pk.cancel()
	pk.cancel = nil
	if err := pk.invoke("uninstall"); err != nil {
		pk.logger.Warn("browser: uninstall listeners", "error", err)
	}
}

func (pk *Picker) dispatch(ctx context.Context, ev session.Events, payload string) {
	msg, err := decodeEvent(payload)
	if err != nil {
		pk.logger.Warn("browser: bad binding payload", "error", err)
		return
	}
	switch msg.Type {
	case eventKey:
		ev.Key(msg.Key)
	case eventMove, eventClick:
		el := pk.element(ctx, msg.Ref)
		if page.Nil(el) {
			return
		}
		if msg.Type == eventMove {
			ev.Move(el)
		} else {
			ev.Click(el)
		}
	}
}

// element resolves a page-side ref to an element handle in the session
// document's object group, so closing that document frees it.
func (pk *Picker) element(ctx context.Context, ref int) page.Value {
	res, err := proto.RuntimeEvaluate{
		Expression:  fmt.Sprintf(jsRef, ref),
		ObjectGroup: pk.doc.ObjectGroup(),
	}.Call(pk.page.Context(ctx))
	if err == nil && res.ExceptionDetails != nil {
		err = fmt.Errorf("%s", res.ExceptionDetails.Text)
	}
	if err != nil {
		pk.logger.Debug("browser: resolve element ref", "ref", ref, "error", err)
		return page.Undefined
	}
	return pk.doc.Wrap(res.Result)
}

func (pk *Picker) invoke(method string, args ...any) error {
	all := append([]any{method}, args...)
	if _, err := pk.page.Evaluate(rod.Eval(jsInvoke, all...)); err != nil {
		return fmt.Errorf("browser: %s: %w", method, err)
	}
	return nil
}

func (pk *Picker) draw(method string, args ...any) {
	if err := pk.invoke(method, args...); err != nil {
		pk.logger.Debug("browser: overlay", "error", err)
	}
}

func (pk *Picker) Open() error {
	if err := pk.inject(); err != nil {
		return err
	}
	return pk.invoke("open")
}

func (pk *Picker) Highlight(r page.Rect) { pk.draw("highlight", r) }

func (pk *Picker) ShowTooltip(r page.Rect, framework string, components []string) {
	if components == nil {
		components = []string{}
	}
	pk.draw("showTooltip", r, framework, components)
}

func (pk *Picker) HideTooltip() { pk.draw("hideTooltip") }

func (pk *Picker) Close() { pk.draw("close") }

const (
	eventMove  = "move"
	eventClick = "click"
	eventKey   = "key"
)

type event struct {
	Type string `json:"type"`
	Ref  int    `json:"ref,omitempty"`
	Key  string `json:"key,omitempty"`
}

func decodeEvent(payload string) (event, error) {
	var e event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return event{}, fmt.Errorf("decode: %w", err)
	}
	switch e.Type {
	case eventMove, eventClick:
		if e.Ref <= 0 {
			return event{}, fmt.Errorf("%s event without ref", e.Type)
		}
	case eventKey:
		if e.Key == "" {
			return event{}, fmt.Errorf("key event without key")
		}
	default:
		return event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}
