package report

import "context"

// Callback hands outcomes to a Go function in the same process.
type Callback func(ctx context.Context, o Outcome) error

func (f Callback) Send(ctx context.Context, o Outcome) error {
	if f == nil {
		return nil
	}
	return f(ctx, o)
}

func (Callback) Close() error { return nil }
