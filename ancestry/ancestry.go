// Package ancestry turns a rendered element into the ordered chain of named
// UI components that produced it.
//
// One Reader exists per supported framework. Each locates the nearest DOM
// node carrying its framework's private instrumentation, walks the
// framework's own parent links upward, and resolves a display name per
// node. Resolver tries the readers in a fixed priority order; Prober answers
// "is any framework present" for a whole document without a target.
package ancestry

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/compick/page"
)

// Framework tags a supported framework family.
type Framework string

const (
	React   Framework = "react"
	Vue     Framework = "vue"
	Angular Framework = "angular"
	Svelte  Framework = "svelte"
)

// DefaultMaxSteps bounds every upward walk, DOM or internal graph.
const DefaultMaxSteps = 10000

// Result is the ancestry of one element. Components run root first, the
// target's own component last. An empty list means the framework matched
// but no named component wraps the element.
type Result struct {
	Framework  Framework `json:"framework"`
	Components []string  `json:"components"`
}

// Reader reads one framework's instrumentation.
type Reader interface {
	Framework() Framework
	// Instrumented reports whether node itself carries the framework's
	// private instrumentation.
	Instrumented(doc page.Document, node page.Value) bool
	// Read returns nil when no instrumented node is reachable from el.
	Read(doc page.Document, el page.Value) *Result
}

// DefaultReaders returns the four readers in priority order.
func DefaultReaders(maxSteps int) []Reader {
	return []Reader{
		&ReactReader{MaxSteps: maxSteps},
		&VueReader{MaxSteps: maxSteps},
		&AngularReader{MaxSteps: maxSteps},
		&SvelteReader{MaxSteps: maxSteps},
	}
}

// LookupError reports a failure while a reader was walking a document:
// a throwing getter, a lost CDP session, an unexpected internal shape.
type LookupError struct {
	Framework Framework
	Err       error
}

func (e *LookupError) Error() string {
	if e.Framework == "" {
		return fmt.Sprintf("ancestry: lookup: %v", e.Err)
	}
	return fmt.Sprintf("ancestry: %s lookup: %v", e.Framework, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Truncate keeps the depth entries closest to the target. depth <= 0 keeps
// everything.
func Truncate(components []string, depth int) []string {
	if depth <= 0 || depth >= len(components) {
		return components
	}
	return components[len(components)-depth:]
}

// JoinPath renders components as "Outer > Middle > Target".
func JoinPath(components []string) string {
	return strings.Join(components, " > ")
}

func empty(fw Framework) *Result {
	return &Result{Framework: fw, Components: []string{}}
}

func steps(n int) int {
	if n <= 0 {
		return DefaultMaxSteps
	}
	return n
}

// usable rejects auto-generated or minified names.
func usable(name string) bool {
	return len(name) > 2
}

var stemRe = map[string]*regexp.Regexp{
	".vue":    regexp.MustCompile(`([^/\\]+)\.vue$`),
	".svelte": regexp.MustCompile(`([^/\\]+)\.svelte$`),
}

// fileStem extracts "Header" from "src/components/Header.vue".
func fileStem(path, ext string) string {
	re, ok := stemRe[ext]
	if !ok {
		return ""
	}
	m := re.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

// anchor walks the DOM parent chain from el and returns the first non-nil
// handle produced by probe.
func anchor(el page.Value, maxSteps int, probe func(node page.Value) page.Value) page.Value {
	node := el
	for i := 0; i < maxSteps && !page.Nil(node); i++ {
		if h := probe(node); !page.Nil(h) {
			return h
		}
		node = page.Parent(node)
	}
	return nil
}

// rootFirst turns a target-first collection into root-first order.
func rootFirst(names []string) []string {
	if names == nil {
		return []string{}
	}
	slices.Reverse(names)
	return names
}
