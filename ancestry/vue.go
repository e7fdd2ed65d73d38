package ancestry

import "github.com/hazyhaar/compick/page"

// VueReader walks Vue 3 component instances through parent links, falling
// back to Vue 2 instances ($parent) on pages that predate Vue 3.
type VueReader struct {
	MaxSteps int
}

func (r *VueReader) Framework() Framework { return Vue }

func (r *VueReader) Instrumented(_ page.Document, node page.Value) bool {
	return !page.Nil(vueInstance(node))
}

func (r *VueReader) Read(_ page.Document, el page.Value) *Result {
	limit := steps(r.MaxSteps)
	inst := anchor(el, limit, vueInstance)
	if inst == nil {
		return nil
	}

	name, parent := vue3Name, "parent"
	if !page.Nil(inst.Get("$options")) {
		name, parent = vue2Name, "$parent"
	}

	var names []string
	seen := make(map[any]bool)
	for i, cur := 0, inst; !page.Nil(cur); i, cur = i+1, cur.Get(parent) {
		id := cur.Identity()
		if i >= limit || seen[id] {
			return empty(Vue)
		}
		seen[id] = true
		if n := name(cur); n != "" {
			names = append(names, n)
		}
	}
	return &Result{Framework: Vue, Components: rootFirst(names)}
}

func vueInstance(node page.Value) page.Value {
	if inst := node.Get("__vueParentComponent"); !page.Nil(inst) {
		return inst
	}
	if inst := node.Get("__vue__"); !page.Nil(inst) {
		return inst
	}
	return nil
}

// vue3Name reads the component definition on instance.type: the declared
// name, then the compiler-inferred __name, then the SFC file stem.
func vue3Name(inst page.Value) string {
	typ := inst.Get("type")
	if !page.IsObjectLike(typ) {
		return ""
	}
	if n := typ.Get("name").Str(); n != "" {
		return n
	}
	if n := typ.Get("__name").Str(); usable(n) {
		return n
	}
	if n := fileStem(typ.Get("__file").Str(), ".vue"); usable(n) {
		return n
	}
	return ""
}

func vue2Name(inst page.Value) string {
	opts := inst.Get("$options")
	if !page.IsObjectLike(opts) {
		return ""
	}
	if n := opts.Get("name").Str(); n != "" {
		return n
	}
	if n := opts.Get("_componentTag").Str(); usable(n) {
		return n
	}
	if n := fileStem(opts.Get("__file").Str(), ".vue"); usable(n) {
		return n
	}
	return ""
}
