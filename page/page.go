// Package page models the observed document as seen from Go: element handles
// and the framework-private objects hanging off them are opaque foreign
// values reached through a Value interface, and document-level operations
// (selectors, traversal, marker attributes, layout) go through Document.
//
// Two backends exist: page/sandbox (offline HTML + goja realm) and page/cdp
// (live Chrome tab over the DevTools protocol). Readers in package ancestry
// only ever see these interfaces.
package page

import "sync"

// Kind classifies a foreign value the way JavaScript's typeof would, with
// null split out of object.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindSymbol
	KindFunction
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	default:
		return "undefined"
	}
}

// Value is a handle on a foreign value. Implementations never return a nil
// Value: missing properties and failed accesses yield an undefined value, and
// failures are latched on the owning Document.
type Value interface {
	Kind() Kind
	// Get reads a property. Reading from a primitive or nullish value
	// yields undefined.
	Get(key string) Value
	// Keys lists own enumerable string-keyed properties.
	Keys() []string
	// Str returns the payload of a string value, "" for any other kind.
	Str() string
	// Num returns the payload of a number value, 0 for any other kind.
	Num() float64
	// Symbol returns the global registry key of a symbol created with
	// Symbol.for, "" otherwise.
	Symbol() string
	// Identity returns a comparable key, equal for two handles on the same
	// underlying object.
	Identity() any
}

// Rect is a viewport bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is the observed document.
type Document interface {
	// Global reads a property of the page's global object.
	Global(name string) Value
	// CallMethod invokes recv[method](args...) with recv as this.
	CallMethod(recv Value, method string, args ...Value) Value
	Body() Value
	QuerySelector(selector string) Value
	QuerySelectorAll(selector string) []Value
	// Walk visits root and its element descendants in document order,
	// stopping after limit visits or when visit returns false.
	Walk(root Value, limit int, visit func(el Value) bool)
	SetAttribute(el Value, name, value string)
	RemoveAttribute(el Value, name string)
	Bounds(el Value) Rect

	// Err returns the first access failure since the last ResetErr.
	Err() error
	ResetErr()
}

// Releaser is a Document that pins page-side objects for the values it
// hands out until told to let them go.
type Releaser interface {
	ReleaseObjects() error
}

// Nil reports whether v is absent, undefined or null.
func Nil(v Value) bool {
	if v == nil {
		return true
	}
	k := v.Kind()
	return k == KindUndefined || k == KindNull
}

// IsObjectLike reports whether v can carry properties of its own.
func IsObjectLike(v Value) bool {
	if v == nil {
		return false
	}
	k := v.Kind()
	return k == KindObject || k == KindFunction
}

// Parent returns the parent element of el, or undefined at the root.
func Parent(el Value) Value {
	if Nil(el) {
		return Undefined
	}
	return el.Get("parentElement")
}

// Undefined is the shared undefined value.
var Undefined Value = undefinedValue{}

type undefinedValue struct{}

func (undefinedValue) Kind() Kind { return KindUndefined }
func (undefinedValue) Get(string) Value { return Undefined }
func (undefinedValue) Keys() []string { return nil }
func (undefinedValue) Str() string { return "" }
func (undefinedValue) Num() float64 { return 0 }
func (undefinedValue) Symbol() string { return "" }
func (undefinedValue) Identity() any { return nil }

// Latch records the first error seen by a backend. It is safe for
// concurrent use.
type Latch struct {
	mu  sync.Mutex
	err error
}

// Fail records err unless an earlier error is already latched.
func (l *Latch) Fail(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
}

// Failed reports whether an error is latched.
func (l *Latch) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err != nil
}

func (l *Latch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Latch) ResetErr() {
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
}
