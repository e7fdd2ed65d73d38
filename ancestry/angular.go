package ancestry

import (
	"strings"
	"unicode"

	"github.com/hazyhaar/compick/page"
)

// AngularReader asks the dev-mode global ng.getComponent for the component
// hosted on each DOM ancestor. Angular keeps no parent pointer between
// components that is reachable from the page, so the DOM chain is the walk.
type AngularReader struct {
	MaxSteps int
}

func (r *AngularReader) Framework() Framework { return Angular }

func (r *AngularReader) Instrumented(doc page.Document, node page.Value) bool {
	ng := ngGlobal(doc)
	if ng == nil {
		return false
	}
	return !page.Nil(doc.CallMethod(ng, "getComponent", node))
}

func (r *AngularReader) Read(doc page.Document, el page.Value) *Result {
	ng := ngGlobal(doc)
	if ng == nil {
		return nil
	}
	limit := steps(r.MaxSteps)
	getComponent := func(node page.Value) page.Value {
		return doc.CallMethod(ng, "getComponent", node)
	}
	if anchor(el, limit, getComponent) == nil {
		return nil
	}

	var names []string
	seen := make(map[any]bool)
	node := el
	for i := 0; !page.Nil(node); i, node = i+1, page.Parent(node) {
		if i >= limit {
			return empty(Angular)
		}
		comp := getComponent(node)
		if page.Nil(comp) {
			continue
		}
		id := comp.Identity()
		if seen[id] {
			continue
		}
		seen[id] = true
		if n := angularName(comp); n != "" {
			names = append(names, n)
		}
	}
	return &Result{Framework: Angular, Components: rootFirst(names)}
}

func ngGlobal(doc page.Document) page.Value {
	ng := doc.Global("ng")
	if !page.IsObjectLike(ng) || ng.Get("getComponent").Kind() != page.KindFunction {
		return nil
	}
	return ng
}

func angularName(comp page.Value) string {
	n := comp.Get("constructor").Get("name").Str()
	// esbuild renames class declarations to _Name when it needs a binding.
	if len(n) > 1 && n[0] == '_' && unicode.IsUpper(rune(n[1])) {
		n = strings.TrimPrefix(n, "_")
	}
	if n == "Object" || !usable(n) {
		return ""
	}
	return n
}
