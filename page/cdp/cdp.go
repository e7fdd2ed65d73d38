// Package cdp is the live page.Document: every foreign value is a
// Runtime.RemoteObject held in a Chrome tab, and every property access is a
// Runtime.callFunctionOn round trip through rod.
package cdp

import (
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/compick/page"
)

const (
	jsGlobal     = `function (name) { return globalThis[name]; }`
	jsGet        = `function (key) { return this[key]; }`
	jsKeys       = `function () { return Object.keys(this); }`
	jsKeyFor     = `function (s) { return typeof s === "symbol" ? (Symbol.keyFor(s) || "") : ""; }`
	jsCall       = `function (method, ...args) { return this[method](...args); }`
	jsBody       = `() => document.body`
	jsQuery      = `function (sel) { return document.querySelector(sel); }`
	jsQueryAll   = `function (sel) { return Array.from(document.querySelectorAll(sel)); }`
	jsSetAttr    = `function (name, value) { this.setAttribute(name, value); }`
	jsRemoveAttr = `function (name) { this.removeAttribute(name); }`
	jsBounds     = `function () { const r = this.getBoundingClientRect(); return { x: r.x, y: r.y, width: r.width, height: r.height }; }`
	jsWalk       = `function (limit) {
		const out = [];
		const w = document.createTreeWalker(this, NodeFilter.SHOW_ELEMENT);
		for (let n = w.currentNode; n && out.length < limit; n = w.nextNode()) out.push(n);
		return out;
	}`
	jsIdentity = `function () {
		const reg = globalThis.__compickIds || (globalThis.__compickIds = { map: new WeakMap(), next: 0 });
		let id = reg.map.get(this);
		if (id === undefined) { id = ++reg.next; reg.map.set(this, id); }
		return id;
	}`
	jsRelease = `() => { delete globalThis.__compickIds; }`
)

// Document drives a rod page. Bind the page to a context with
// (*rod.Page).Context before calling New to bound every round trip.
//
// Every object handle the Document creates belongs to one Runtime object
// group, so ReleaseObjects frees them all at once.
type Document struct {
	page.Latch
	p      *rod.Page
	group  string
	global *proto.RuntimeRemoteObject
}

var (
	_ page.Document = (*Document)(nil)
	_ page.Releaser = (*Document)(nil)
)

var groupSeq atomic.Uint64

// New wraps p.
func New(p *rod.Page) *Document {
	return &Document{p: p, group: fmt.Sprintf("compick-%d", groupSeq.Add(1))}
}

// Page returns the underlying rod page.
func (d *Document) Page() *rod.Page { return d.p }

// ObjectGroup names the Runtime object group this Document's handles
// live in.
func (d *Document) ObjectGroup() string { return d.group }

// ReleaseObjects frees every handle handed out so far. Values obtained
// before the call must not be used afterwards.
func (d *Document) ReleaseObjects() error {
	d.global = nil
	if err := (proto.RuntimeReleaseObjectGroup{ObjectGroup: d.group}).Call(d.p); err != nil {
		return fmt.Errorf("cdp: release object group: %w", err)
	}
	return nil
}

// Close releases the handles and drops the page-side identity registry.
func (d *Document) Close() error {
	rerr := d.ReleaseObjects()
	if _, err := d.p.Evaluate(rod.Eval(jsRelease)); err != nil {
		return fmt.Errorf("cdp: release identities: %w", err)
	}
	return rerr
}

// eval calls js with this bound to the given object (nil means the global
// object) and returns the raw remote object, or nil after latching the
// failure.
func (d *Document) eval(this *proto.RuntimeRemoteObject, byValue bool, js string, args ...any) *proto.RuntimeRemoteObject {
	if d.Failed() {
		return nil
	}
	if this == nil {
		if this = d.globalObject(); this == nil {
			return nil
		}
	}
	call := proto.RuntimeCallFunctionOn{
		FunctionDeclaration: js,
		ObjectID:            this.ObjectID,
		Arguments:           make([]*proto.RuntimeCallArgument, 0, len(args)),
		ReturnByValue:       byValue,
		ObjectGroup:         d.group,
	}
	for _, a := range args {
		call.Arguments = append(call.Arguments, callArg(a))
	}
	res, err := call.Call(d.p)
	if err != nil {
		d.Fail(fmt.Errorf("cdp: evaluate: %w", err))
		return nil
	}
	if res.ExceptionDetails != nil {
		d.Fail(fmt.Errorf("cdp: evaluate: %s", exceptionText(res.ExceptionDetails)))
		return nil
	}
	return res.Result
}

// globalObject is a handle on globalThis in the Document's group.
func (d *Document) globalObject() *proto.RuntimeRemoteObject {
	if d.global != nil {
		return d.global
	}
	res, err := proto.RuntimeEvaluate{Expression: "globalThis", ObjectGroup: d.group}.Call(d.p)
	if err != nil {
		d.Fail(fmt.Errorf("cdp: global object: %w", err))
		return nil
	}
	if res.ExceptionDetails != nil {
		d.Fail(fmt.Errorf("cdp: global object: %s", exceptionText(res.ExceptionDetails)))
		return nil
	}
	d.global = res.Result
	return d.global
}

func callArg(a any) *proto.RuntimeCallArgument {
	switch v := a.(type) {
	case nil:
		return &proto.RuntimeCallArgument{}
	case *proto.RuntimeRemoteObject:
		return &proto.RuntimeCallArgument{ObjectID: v.ObjectID}
	case gson.JSON:
		return &proto.RuntimeCallArgument{Value: v}
	default:
		return &proto.RuntimeCallArgument{Value: gson.New(v)}
	}
}

func exceptionText(e *proto.RuntimeExceptionDetails) string {
	if e.Exception != nil && e.Exception.Description != "" {
		return e.Exception.Description
	}
	return e.Text
}

// Wrap adopts a remote object obtained outside the Document, such as an
// element handed over by an injected script.
func (d *Document) Wrap(obj *proto.RuntimeRemoteObject) page.Value { return d.wrap(obj) }

func (d *Document) wrap(obj *proto.RuntimeRemoteObject) page.Value {
	if obj == nil {
		return page.Undefined
	}
	return remote{d: d, obj: obj}
}

func (d *Document) Global(name string) page.Value {
	return d.wrap(d.eval(nil, false, jsGlobal, name))
}

func (d *Document) CallMethod(recv page.Value, method string, args ...page.Value) page.Value {
	r, ok := recv.(remote)
	if !ok || r.obj.ObjectID == "" {
		return page.Undefined
	}
	jsArgs := make([]any, 0, len(args)+1)
	jsArgs = append(jsArgs, method)
	for _, a := range args {
		jsArgs = append(jsArgs, argOf(a))
	}
	return d.wrap(d.eval(r.obj, false, jsCall, jsArgs...))
}

func (d *Document) Body() page.Value {
	return d.wrap(d.eval(nil, false, jsBody))
}

func (d *Document) QuerySelector(selector string) page.Value {
	res := d.eval(nil, false, jsQuery, selector)
	if res == nil || res.ObjectID == "" {
		return page.Undefined
	}
	return d.wrap(res)
}

func (d *Document) QuerySelectorAll(selector string) []page.Value {
	arr := d.eval(nil, false, jsQueryAll, selector)
	if arr == nil {
		return nil
	}
	return d.arrayItems(arr)
}

// Walk collects up to limit elements in a single round trip, then visits
// them in document order.
func (d *Document) Walk(root page.Value, limit int, visit func(el page.Value) bool) {
	r, ok := root.(remote)
	if !ok || r.obj.ObjectID == "" || limit <= 0 {
		return
	}
	arr := d.eval(r.obj, false, jsWalk, limit)
	if arr == nil {
		return
	}
	for _, el := range d.arrayItems(arr) {
		if !visit(el) {
			return
		}
	}
}

// arrayItems lists the indexed members of a remote array.
func (d *Document) arrayItems(arr *proto.RuntimeRemoteObject) []page.Value {
	if arr.ObjectID == "" {
		return nil
	}
	props, err := proto.RuntimeGetProperties{ObjectID: arr.ObjectID, OwnProperties: true}.Call(d.p)
	if err != nil {
		d.Fail(fmt.Errorf("cdp: get properties: %w", err))
		return nil
	}

	type item struct {
		idx int
		obj *proto.RuntimeRemoteObject
	}
	items := make([]item, 0, len(props.Result))
	for _, p := range props.Result {
		i, err := strconv.Atoi(p.Name)
		if err != nil || p.Value == nil {
			continue
		}
		items = append(items, item{i, p.Value})
	}
	sort.Slice(items, func(a, b int) bool { return items[a].idx < items[b].idx })

	out := make([]page.Value, len(items))
	for i, it := range items {
		out[i] = d.wrap(it.obj)
	}
	return out
}

func (d *Document) SetAttribute(el page.Value, name, value string) {
	if r, ok := el.(remote); ok && r.obj.ObjectID != "" {
		d.eval(r.obj, true, jsSetAttr, name, value)
	}
}

func (d *Document) RemoveAttribute(el page.Value, name string) {
	if r, ok := el.(remote); ok && r.obj.ObjectID != "" {
		d.eval(r.obj, true, jsRemoveAttr, name)
	}
}

func (d *Document) Bounds(el page.Value) page.Rect {
	r, ok := el.(remote)
	if !ok || r.obj.ObjectID == "" {
		return page.Rect{}
	}
	res := d.eval(r.obj, true, jsBounds)
	if res == nil {
		return page.Rect{}
	}
	v := res.Value
	return page.Rect{
		X:      v.Get("x").Num(),
		Y:      v.Get("y").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}
}

// argOf converts a value into a call argument: remote objects travel by
// id, primitives by their JSON value.
func argOf(v page.Value) any {
	r, ok := v.(remote)
	if !ok {
		return nil
	}
	if r.obj.ObjectID != "" {
		return r.obj
	}
	if r.obj.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return nil
	}
	return r.obj.Value
}

// remote is a page.Value backed by a RemoteObject.
type remote struct {
	d   *Document
	obj *proto.RuntimeRemoteObject
}

func (r remote) Kind() page.Kind {
	switch r.obj.Type {
	case proto.RuntimeRemoteObjectTypeObject:
		if r.obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
			return page.KindNull
		}
		return page.KindObject
	case proto.RuntimeRemoteObjectTypeFunction:
		return page.KindFunction
	case proto.RuntimeRemoteObjectTypeString:
		return page.KindString
	case proto.RuntimeRemoteObjectTypeNumber, proto.RuntimeRemoteObjectTypeBigint:
		return page.KindNumber
	case proto.RuntimeRemoteObjectTypeBoolean:
		return page.KindBool
	case proto.RuntimeRemoteObjectTypeSymbol:
		return page.KindSymbol
	default:
		return page.KindUndefined
	}
}

func (r remote) Get(key string) page.Value {
	if !page.IsObjectLike(r) || r.obj.ObjectID == "" {
		return page.Undefined
	}
	return r.d.wrap(r.d.eval(r.obj, false, jsGet, key))
}

func (r remote) Keys() []string {
	if !page.IsObjectLike(r) || r.obj.ObjectID == "" {
		return nil
	}
	res := r.d.eval(r.obj, true, jsKeys)
	if res == nil {
		return nil
	}
	arr := res.Value.Arr()
	keys := make([]string, 0, len(arr))
	for _, k := range arr {
		keys = append(keys, k.Str())
	}
	return keys
}

func (r remote) Str() string {
	if r.obj.Type != proto.RuntimeRemoteObjectTypeString {
		return ""
	}
	return r.obj.Value.Str()
}

func (r remote) Num() float64 {
	if r.obj.Type != proto.RuntimeRemoteObjectTypeNumber {
		return 0
	}
	return r.obj.Value.Num()
}

func (r remote) Symbol() string {
	if r.obj.Type != proto.RuntimeRemoteObjectTypeSymbol || r.obj.ObjectID == "" {
		return ""
	}
	res := r.d.eval(nil, true, jsKeyFor, r.obj)
	if res == nil {
		return ""
	}
	return res.Value.Str()
}

// Identity keys objects through a page-side WeakMap, because object ids
// differ for each handle on the same object.
func (r remote) Identity() any {
	switch {
	case r.obj.Type == proto.RuntimeRemoteObjectTypeSymbol:
		return "symbol:" + r.obj.Description
	case page.IsObjectLike(r) && r.obj.ObjectID != "":
		res := r.d.eval(r.obj, true, jsIdentity)
		if res == nil {
			return nil
		}
		return identity(res.Value.Int())
	default:
		return primitive(r.obj.Value)
	}
}

type identity int

func primitive(v gson.JSON) any {
	if v.Nil() {
		return nil
	}
	return v.JSON("", "")
}
