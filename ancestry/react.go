package ancestry

import (
	"strings"

	"github.com/hazyhaar/compick/page"
)

// Fiber anchors. The suffix after "$" is a per-renderer random key.
var (
	reactFiberPrefixes     = []string{"__reactFiber$", "__reactInternalInstance$"}
	reactContainerPrefixes = []string{"__reactContainer$", "_reactRootContainer"}
)

const maxUnwrap = 8

// ReactReader walks Fiber return links.
type ReactReader struct {
	MaxSteps int
}

func (r *ReactReader) Framework() Framework { return React }

func (r *ReactReader) Instrumented(_ page.Document, node page.Value) bool {
	for _, k := range node.Keys() {
		if hasAnyPrefix(k, reactFiberPrefixes) || hasAnyPrefix(k, reactContainerPrefixes) {
			return true
		}
	}
	return false
}

func (r *ReactReader) Read(_ page.Document, el page.Value) *Result {
	limit := steps(r.MaxSteps)
	fiber := anchor(el, limit, reactFiber)
	if fiber == nil {
		return nil
	}

	var names []string
	seen := make(map[any]bool)
	var prevType page.Value
	for i, f := 0, fiber; !page.Nil(f); i, f = i+1, f.Get("return") {
		id := f.Identity()
		if i >= limit || seen[id] {
			return empty(React)
		}
		seen[id] = true

		name := fiberName(f)
		typ := f.Get("type")
		switch {
		case name == "":
			prevType = nil
			continue
		case wraps(typ, prevType):
			// A memo or forwardRef fiber directly above the fiber it wraps;
			// the outer one's name wins.
			names[len(names)-1] = name
		default:
			names = append(names, name)
		}
		prevType = typ
	}
	return &Result{Framework: React, Components: rootFirst(names)}
}

func reactFiber(node page.Value) page.Value {
	for _, k := range node.Keys() {
		if hasAnyPrefix(k, reactFiberPrefixes) {
			return node.Get(k)
		}
	}
	return nil
}

// fiberName resolves a fiber's display name. Host, provider and context
// fibers have no name.
func fiberName(f page.Value) string {
	typ := f.Get("type")
	if !page.IsObjectLike(typ) {
		return ""
	}
	// SimpleMemoComponent fibers carry the inner function as type and keep
	// the memo wrapper on elementType.
	if et := f.Get("elementType"); reactTag(et) == "react.memo" {
		return definitionName(et, 0)
	}
	return definitionName(typ, 0)
}

// wraps reports whether outer is a memo, forwardRef or lazy wrapper whose
// directly wrapped type is inner. Two plain components never match.
func wraps(outer, inner page.Value) bool {
	if page.Nil(inner) || !page.IsObjectLike(inner) {
		return false
	}
	unwrapped := unwrap(outer)
	if unwrapped == nil || !page.IsObjectLike(unwrapped) {
		return false
	}
	return unwrapped.Identity() == inner.Identity()
}

// unwrap returns the type one wrapper level down, or nil when t is not a
// wrapper.
func unwrap(t page.Value) page.Value {
	switch reactTag(t) {
	case "react.memo":
		return t.Get("type")
	case "react.forward_ref":
		return t.Get("render")
	case "react.lazy":
		return t.Get("_payload").Get("value")
	}
	return nil
}

func definitionName(t page.Value, depth int) string {
	if !page.IsObjectLike(t) || depth > maxUnwrap {
		return ""
	}

	switch reactTag(t) {
	case "react.memo", "react.forward_ref", "react.lazy":
	case "react.provider", "react.context", "react.consumer":
		return ""
	default:
		if name := t.Get("displayName").Str(); name != "" {
			return name
		}
		if name := t.Get("name").Str(); usable(name) {
			return name
		}
		return ""
	}

	if own := t.Get("displayName").Str(); own != "" {
		return own
	}
	return definitionName(unwrap(t), depth+1)
}

func reactTag(v page.Value) string {
	if !page.IsObjectLike(v) {
		return ""
	}
	return v.Get("$$typeof").Symbol()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
