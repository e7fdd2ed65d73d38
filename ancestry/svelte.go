package ancestry

import "github.com/hazyhaar/compick/page"

// SvelteReader reads the dev-mode __svelte_meta.loc.file source location
// that Svelte stamps on the elements it creates. One file is one component:
// every element rendered by the same component shares the location file.
type SvelteReader struct {
	MaxSteps int
}

func (r *SvelteReader) Framework() Framework { return Svelte }

func (r *SvelteReader) Instrumented(_ page.Document, node page.Value) bool {
	return !page.Nil(svelteMeta(node))
}

func (r *SvelteReader) Read(_ page.Document, el page.Value) *Result {
	limit := steps(r.MaxSteps)
	if anchor(el, limit, svelteMeta) == nil {
		return nil
	}

	var names []string
	seenFiles := make(map[string]bool)
	node := el
	for i := 0; !page.Nil(node); i, node = i+1, page.Parent(node) {
		if i >= limit {
			return empty(Svelte)
		}
		file := svelteMeta(node).Get("loc").Get("file").Str()
		if file == "" || seenFiles[file] {
			continue
		}
		seenFiles[file] = true
		if n := fileStem(file, ".svelte"); n != "" {
			names = append(names, n)
		}
	}
	return &Result{Framework: Svelte, Components: rootFirst(names)}
}

func svelteMeta(node page.Value) page.Value {
	meta := node.Get("__svelte_meta")
	if page.Nil(meta) {
		return page.Undefined
	}
	return meta
}
