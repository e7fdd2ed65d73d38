// Package report delivers pick outcomes to the collaborators outside the
// session: stdout, history, webhooks, in-process callbacks.
package report

import (
	"context"
	"time"
)

// Outcome is the result of one pick. Error is set on failure, possibly
// alongside the framework that was detected before the failure.
type Outcome struct {
	ID        string    `json:"id"`
	PageURL   string    `json:"page_url,omitempty"`
	Path      string    `json:"path,omitempty"`
	Framework string    `json:"framework,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK reports whether the pick produced a path.
func (o Outcome) OK() bool { return o.Error == "" && o.Path != "" }

// Sink receives outcomes.
type Sink interface {
	Send(ctx context.Context, o Outcome) error
	Close() error
}
