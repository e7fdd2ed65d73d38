// Package sandbox is an offline page.Document: static HTML parsed with
// x/net/html, plus a goja realm where a fixture or captured script attaches
// framework instrumentation to element wrappers exactly as a browser page
// would (expando properties, globals such as window.ng).
//
// The sandbox has no layout engine and no DOM mutation API beyond attributes;
// it exists to analyse captured pages and to drive tests without Chrome.
package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/hazyhaar/compick/page"
)

// Document is a sandboxed page. All entry points are serialised: goja
// runtimes are not safe for concurrent use.
type Document struct {
	page.Latch

	mu       sync.Mutex
	vm       *goja.Runtime
	root     *html.Node
	body     *html.Node
	proto    *goja.Object
	wrappers map[*html.Node]*goja.Object
	nodes    map[*goja.Object]*html.Node
	keyFor   goja.Callable
}

var _ page.Document = (*Document)(nil)

// Load parses src and runs script in the page realm. The script sees
// window, document.getElementById, document.querySelector,
// document.querySelectorAll and document.body.
func Load(src, script string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("sandbox: parse html: %w", err)
	}

	d := &Document{
		vm:       goja.New(),
		root:     root,
		wrappers: make(map[*html.Node]*goja.Object),
		nodes:    make(map[*goja.Object]*html.Node),
	}
	d.body = findElement(root, "body")

	if err := d.install(); err != nil {
		return nil, fmt.Errorf("sandbox: install realm: %w", err)
	}

	if script != "" {
		if _, err := d.vm.RunString(script); err != nil {
			return nil, fmt.Errorf("sandbox: run script: %w", err)
		}
	}
	return d, nil
}

// LoadFiles reads an HTML file and an optional script file and calls Load.
func LoadFiles(htmlPath, scriptPath string) (*Document, error) {
	src, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("sandbox: read html: %w", err)
	}
	var script []byte
	if scriptPath != "" {
		script, err = os.ReadFile(scriptPath)
		if err != nil {
			return nil, fmt.Errorf("sandbox: read script: %w", err)
		}
	}
	return Load(string(src), string(script))
}

// Run evaluates more script in the page realm, e.g. to mutate
// instrumentation between lookups.
func (d *Document) Run(script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.vm.RunString(script); err != nil {
		return fmt.Errorf("sandbox: run script: %w", err)
	}
	return nil
}

// Attr returns the current value of an attribute on el.
func (d *Document) Attr(el page.Value, name string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nodeOfValue(el)
	if n == nil {
		return "", false
	}
	return attr(n, name)
}

func (d *Document) install() error {
	vm := d.vm

	keyFor, err := vm.RunString(`(function (s) { return typeof s === "symbol" ? (Symbol.keyFor(s) || "") : ""; })`)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(keyFor)
	if !ok {
		return fmt.Errorf("keyFor is not callable")
	}
	d.keyFor = fn

	proto := vm.NewObject()
	accessors := map[string]func(n *html.Node) goja.Value{
		"parentElement": func(n *html.Node) goja.Value { return d.wrapOrNull(parentElement(n)) },
		"tagName":       func(n *html.Node) goja.Value { return vm.ToValue(strings.ToUpper(n.Data)) },
		"id": func(n *html.Node) goja.Value {
			v, _ := attr(n, "id")
			return vm.ToValue(v)
		},
	}
	for name, get := range accessors {
		if err := proto.DefineAccessorProperty(name, d.nodeGetter(get), nil, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}

	methods := map[string]func(n *html.Node, call goja.FunctionCall) goja.Value{
		"getAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			if v, ok := attr(n, call.Argument(0).String()); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		},
		"hasAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			_, ok := attr(n, call.Argument(0).String())
			return vm.ToValue(ok)
		},
		"setAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			setAttr(n, call.Argument(0).String(), call.Argument(1).String())
			return goja.Undefined()
		},
		"removeAttribute": func(n *html.Node, call goja.FunctionCall) goja.Value {
			removeAttr(n, call.Argument(0).String())
			return goja.Undefined()
		},
	}
	for name, m := range methods {
		if err := proto.Set(name, func(call goja.FunctionCall) goja.Value {
			n := d.nodeOf(call.This)
			if n == nil {
				panic(vm.NewTypeError("illegal invocation"))
			}
			return m(n, call)
		}); err != nil {
			return err
		}
	}
	d.proto = proto

	doc := vm.NewObject()
	if err := doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		return d.wrapOrNull(findByID(d.root, id))
	}); err != nil {
		return err
	}
	if err := doc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		sel, err := cascadia.Compile(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return d.wrapOrNull(sel.MatchFirst(d.root))
	}); err != nil {
		return err
	}
	if err := doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		sel, err := cascadia.Compile(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		matches := sel.MatchAll(d.root)
		items := make([]any, 0, len(matches))
		for _, n := range matches {
			items = append(items, d.wrap(n))
		}
		return vm.NewArray(items...)
	}); err != nil {
		return err
	}
	if err := doc.DefineAccessorProperty("body", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.wrapOrNull(d.body)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := vm.Set("document", doc); err != nil {
		return err
	}
	return vm.Set("window", vm.GlobalObject())
}

func (d *Document) nodeGetter(get func(n *html.Node) goja.Value) goja.Value {
	return d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		n := d.nodeOf(call.This)
		if n == nil {
			return goja.Undefined()
		}
		return get(n)
	})
}

// wrap returns the unique JS wrapper of an element node.
func (d *Document) wrap(n *html.Node) *goja.Object {
	if obj, ok := d.wrappers[n]; ok {
		return obj
	}
	obj := d.vm.NewObject()
	obj.SetPrototype(d.proto)
	d.wrappers[n] = obj
	d.nodes[obj] = n
	return obj
}

func (d *Document) wrapOrNull(n *html.Node) goja.Value {
	if n == nil || n.Type != html.ElementNode {
		return goja.Null()
	}
	return d.wrap(n)
}

func (d *Document) nodeOf(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return d.nodes[obj]
}

func (d *Document) nodeOfValue(v page.Value) *html.Node {
	x, ok := v.(value)
	if !ok || x.d != d {
		return nil
	}
	return d.nodeOf(x.v)
}

// guard runs fn and converts a JS exception or Go panic raised inside the
// realm into a latched error.
func (d *Document) guard(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *goja.Exception:
				d.Fail(fmt.Errorf("sandbox: %s", e.Error()))
			case error:
				d.Fail(fmt.Errorf("sandbox: %w", e))
			default:
				d.Fail(fmt.Errorf("sandbox: %v", e))
			}
			ok = false
		}
	}()
	fn()
	return true
}

// --- page.Document ---

func (d *Document) Global(name string) page.Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out goja.Value
	if !d.guard(func() { out = d.vm.GlobalObject().Get(name) }) {
		return page.Undefined
	}
	return d.val(out)
}

func (d *Document) CallMethod(recv page.Value, method string, args ...page.Value) page.Value {
	x, ok := recv.(value)
	if !ok {
		return page.Undefined
	}
	obj, ok := x.v.(*goja.Object)
	if !ok {
		return page.Undefined
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	gargs := make([]goja.Value, len(args))
	for i, a := range args {
		if av, ok := a.(value); ok && av.d == d {
			gargs[i] = av.v
		} else {
			gargs[i] = goja.Undefined()
		}
	}

	var out goja.Value
	ok = d.guard(func() {
		fn, callable := goja.AssertFunction(obj.Get(method))
		if !callable {
			panic(fmt.Errorf("%s is not a function", method))
		}
		res, err := fn(obj, gargs...)
		if err != nil {
			panic(err)
		}
		out = res
	})
	if !ok {
		return page.Undefined
	}
	return d.val(out)
}

func (d *Document) Body() page.Value {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.body == nil {
		return page.Undefined
	}
	return d.val(d.wrap(d.body))
}

func (d *Document) QuerySelector(selector string) page.Value {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		d.Fail(fmt.Errorf("sandbox: selector %q: %w", selector, err))
		return page.Undefined
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := sel.MatchFirst(d.root)
	if n == nil {
		return page.Undefined
	}
	return d.val(d.wrap(n))
}

func (d *Document) QuerySelectorAll(selector string) []page.Value {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		d.Fail(fmt.Errorf("sandbox: selector %q: %w", selector, err))
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := sel.MatchAll(d.root)
	out := make([]page.Value, 0, len(matches))
	for _, n := range matches {
		out = append(out, d.val(d.wrap(n)))
	}
	return out
}

func (d *Document) Walk(root page.Value, limit int, visit func(el page.Value) bool) {
	d.mu.Lock()
	start := d.nodeOfValue(root)
	d.mu.Unlock()
	if start == nil || limit <= 0 {
		return
	}

	// Sandbox trees are structurally immutable, so only wrapping needs the lock.
	stack := []*html.Node{start}
	visited := 0
	for len(stack) > 0 && visited < limit {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d.mu.Lock()
		el := d.val(d.wrap(n))
		d.mu.Unlock()

		visited++
		if !visit(el) {
			return
		}

		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				children = append(children, c)
			}
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

func (d *Document) SetAttribute(el page.Value, name, val string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.nodeOfValue(el); n != nil {
		setAttr(n, name, val)
	}
}

func (d *Document) RemoveAttribute(el page.Value, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.nodeOfValue(el); n != nil {
		removeAttr(n, name)
	}
}

// Bounds reads a data-rect="x,y,w,h" attribute; the sandbox has no layout.
func (d *Document) Bounds(el page.Value) page.Rect {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.nodeOfValue(el)
	if n == nil {
		return page.Rect{}
	}
	raw, ok := attr(n, "data-rect")
	if !ok {
		return page.Rect{}
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return page.Rect{}
	}
	var f [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return page.Rect{}
		}
		f[i] = v
	}
	return page.Rect{X: f[0], Y: f[1], Width: f[2], Height: f[3]}
}

// --- html.Node helpers ---

func parentElement(n *html.Node) *html.Node {
	if n == nil || n.Parent == nil || n.Parent.Type != html.ElementNode {
		return nil
	}
	return n.Parent
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
