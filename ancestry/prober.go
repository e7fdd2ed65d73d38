package ancestry

import (
	"log/slog"

	"github.com/hazyhaar/compick/page"
)

// DefaultProbeBudget caps the node visits of the fallback walk.
const DefaultProbeBudget = 2000

// DefaultMountSelectors are the conventional application mount points.
var DefaultMountSelectors = []string{
	"#root",
	"#app",
	"#__next",
	"#__nuxt",
	"[ng-version]",
	"[data-reactroot]",
	"#svelte",
	"body > div",
}

// ProbeResult says whether a supported framework runs on the page. A page
// whose instrumentation lies beyond the walk budget reports absent.
type ProbeResult struct {
	Present   bool      `json:"available"`
	Framework Framework `json:"framework,omitempty"`
}

// Prober scans a whole document for framework instrumentation.
type Prober struct {
	readers []Reader
	budget  int
	mounts  []string
	logger  *slog.Logger
}

type ProbeOption func(*Prober)

func WithBudget(n int) ProbeOption {
	return func(p *Prober) {
		if n > 0 {
			p.budget = n
		}
	}
}

func WithMountSelectors(selectors ...string) ProbeOption {
	return func(p *Prober) {
		if len(selectors) > 0 {
			p.mounts = selectors
		}
	}
}

// WithProbeReaders sets the readers whose instrumentation probes are used,
// in priority order.
func WithProbeReaders(readers ...Reader) ProbeOption {
	return func(p *Prober) { p.readers = readers }
}

func WithProbeLogger(l *slog.Logger) ProbeOption {
	return func(p *Prober) { p.logger = l }
}

func NewProber(opts ...ProbeOption) *Prober {
	p := &Prober{
		budget: DefaultProbeBudget,
		mounts: DefaultMountSelectors,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if len(p.readers) == 0 {
		p.readers = DefaultReaders(DefaultMaxSteps)
	}
	return p
}

// Probe runs the three stages in order of cost: global markers, mount
// points, then a walk bounded by the budget.
func (p *Prober) Probe(doc page.Document) (ProbeResult, error) {
	if fw, ok := globalMarker(doc); ok {
		return p.found(fw, "global")
	}
	if err := doc.Err(); err != nil {
		return ProbeResult{}, &LookupError{Err: err}
	}

	var roots []page.Value
	for _, sel := range p.mounts {
		m := doc.QuerySelector(sel)
		if page.Nil(m) {
			continue
		}
		if fw, ok := p.instrumented(doc, m); ok {
			return p.found(fw, "mount")
		}
		roots = append(roots, m)
	}
	if err := doc.Err(); err != nil {
		return ProbeResult{}, &LookupError{Err: err}
	}

	if body := doc.Body(); !page.Nil(body) {
		roots = append(roots, body)
	}
	remaining := p.budget
	var hit Framework
	for _, root := range roots {
		if remaining <= 0 || hit != "" {
			break
		}
		doc.Walk(root, remaining, func(el page.Value) bool {
			remaining--
			if fw, ok := p.instrumented(doc, el); ok {
				hit = fw
				return false
			}
			return remaining > 0
		})
	}
	if err := doc.Err(); err != nil {
		return ProbeResult{}, &LookupError{Framework: hit, Err: err}
	}
	if hit != "" {
		return p.found(hit, "walk")
	}

	p.logger.Debug("ancestry: probe found nothing", "budget", p.budget)
	return ProbeResult{}, nil
}

func (p *Prober) found(fw Framework, stage string) (ProbeResult, error) {
	p.logger.Debug("ancestry: probe hit", "framework", fw, "stage", stage)
	return ProbeResult{Present: true, Framework: fw}, nil
}

func (p *Prober) instrumented(doc page.Document, node page.Value) (Framework, bool) {
	for _, r := range p.readers {
		if r.Instrumented(doc, node) {
			return r.Framework(), true
		}
	}
	return "", false
}

// globalMarker checks the document-level hooks development builds install
// unconditionally, in reader priority order.
func globalMarker(doc page.Document) (Framework, bool) {
	hook := doc.Global("__REACT_DEVTOOLS_GLOBAL_HOOK__")
	if page.IsObjectLike(hook) && hook.Get("renderers").Get("size").Num() > 0 {
		return React, true
	}
	if !page.Nil(doc.Global("__VUE__")) {
		return Vue, true
	}
	if ngGlobal(doc) != nil {
		return Angular, true
	}
	if !page.Nil(doc.Global("__svelte")) {
		return Svelte, true
	}
	return "", false
}
