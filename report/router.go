package report

import (
	"context"
	"log/slog"
)

// Router fans an outcome out to every sink. A failing sink does not stop
// the others; failures are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink. Not safe once outcomes are flowing.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

func (r *Router) Send(ctx context.Context, o Outcome) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Send(ctx, o); err != nil {
			r.logger.Warn("report: send outcome failed", "id", o.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
