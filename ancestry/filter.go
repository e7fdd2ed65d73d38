package ancestry

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// NameFilter is a compiled boolean expression over a component name and its
// framework, e.g.
//
//	not (name startsWith "Styled") && name != "Transition"
//
// Names for which it yields false are dropped from a result.
type NameFilter struct {
	src     string
	program *vm.Program
}

func filterEnv(fw Framework, name string) map[string]any {
	return map[string]any{"name": name, "framework": string(fw)}
}

// CompileNameFilter compiles src. An empty src yields a nil filter, which
// keeps every name.
func CompileNameFilter(src string) (*NameFilter, error) {
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(filterEnv("", "")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("ancestry: compile name filter: %w", err)
	}
	return &NameFilter{src: src, program: program}, nil
}

func (f *NameFilter) String() string { return f.src }

// Keep reports whether name survives the filter. Evaluation errors keep the
// name.
func (f *NameFilter) Keep(fw Framework, name string) bool {
	if f == nil {
		return true
	}
	out, err := expr.Run(f.program, filterEnv(fw, name))
	if err != nil {
		return true
	}
	keep, ok := out.(bool)
	return !ok || keep
}

// Apply returns the components the filter keeps, order preserved.
func (f *NameFilter) Apply(fw Framework, components []string) []string {
	if f == nil {
		return components
	}
	out := make([]string, 0, len(components))
	for _, c := range components {
		if f.Keep(fw, c) {
			out = append(out, c)
		}
	}
	return out
}
