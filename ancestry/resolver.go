package ancestry

import (
	"log/slog"

	"github.com/hazyhaar/compick/page"
)

// Resolver dispatches to readers in priority order. First match wins.
type Resolver struct {
	readers []Reader
	filter  *NameFilter
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReaders replaces the default reader list. Order is priority.
func WithReaders(readers ...Reader) Option {
	return func(r *Resolver) { r.readers = readers }
}

// WithNameFilter drops component names the filter rejects.
func WithNameFilter(f *NameFilter) Option {
	return func(r *Resolver) { r.filter = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver returns a resolver over DefaultReaders(DefaultMaxSteps)
// unless WithReaders says otherwise.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	if len(r.readers) == 0 {
		r.readers = DefaultReaders(DefaultMaxSteps)
	}
	return r
}

// Readers returns the readers in priority order.
func (r *Resolver) Readers() []Reader { return r.readers }

// Resolve returns the ancestry of el, or nil when no reader matches.
// A document access failure during a reader's walk aborts the lookup with a
// *LookupError naming that reader's framework.
func (r *Resolver) Resolve(doc page.Document, el page.Value) (*Result, error) {
	if page.Nil(el) {
		return nil, nil
	}
	for _, rd := range r.readers {
		res := rd.Read(doc, el)
		if err := doc.Err(); err != nil {
			return nil, &LookupError{Framework: rd.Framework(), Err: err}
		}
		if res == nil {
			continue
		}
		if r.filter != nil {
			res.Components = r.filter.Apply(res.Framework, res.Components)
		}
		r.logger.Debug("ancestry: resolved",
			"framework", res.Framework,
			"components", len(res.Components))
		return res, nil
	}
	return nil, nil
}
