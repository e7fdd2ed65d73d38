package history

import (
	"context"

	"github.com/hazyhaar/compick/report"
)

// Sink records successful outcomes in a Store. Failed picks are skipped.
type Sink struct {
	store *Store
}

// NewSink returns a report.Sink backed by store. Closing the sink does not
// close the store.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

var _ report.Sink = (*Sink)(nil)

func (s *Sink) Send(ctx context.Context, o report.Outcome) error {
	if !o.OK() {
		return nil
	}
	return s.store.Add(ctx, Entry{
		ID:        o.ID,
		Path:      o.Path,
		Framework: o.Framework,
		PageURL:   o.PageURL,
		CreatedAt: o.Timestamp,
	})
}

func (s *Sink) Close() error { return nil }
