package bridge

import (
	"context"
	"sync"
)

// Transport carries requests to a broker and responses back. Delivery is
// not guaranteed and responses may arrive in any order; callers match them
// by correlation id.
type Transport interface {
	Send(ctx context.Context, req Request) error
	// Responses is closed once the transport is closed.
	Responses() <-chan Response
	Close() error
}

// Pipe is an in-process Transport. One goroutine serves requests in arrival
// order, so the handler never runs concurrently with itself.
type Pipe struct {
	handler Handler
	reqs    chan Request
	resps   chan Response

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Transport = (*Pipe)(nil)

// NewPipe starts serving h. buffer sizes both directions; <= 0 means 16.
func NewPipe(h Handler, buffer int) *Pipe {
	if buffer <= 0 {
		buffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipe{
		handler: h,
		reqs:    make(chan Request, buffer),
		resps:   make(chan Response, buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(1)
	go p.serve()
	return p
}

func (p *Pipe) serve() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case req := <-p.reqs:
			resp, ok := p.handler(p.ctx, req)
			if !ok {
				continue
			}
			select {
			case p.resps <- resp:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pipe) Send(ctx context.Context, req Request) error {
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case p.reqs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrClosed
	}
}

func (p *Pipe) Responses() <-chan Response { return p.resps }

// Close stops the serving goroutine. Requests still queued are dropped.
func (p *Pipe) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		close(p.resps)
	})
	return nil
}

// Call sends req and waits for the response carrying its correlation id,
// discarding any other response it reads meanwhile. The core enforces no
// timeout; bound ctx to get one. Call must be the only reader of t's
// responses.
func Call(ctx context.Context, t Transport, req Request) (Response, error) {
	if err := t.Send(ctx, req); err != nil {
		return Response{}, err
	}
	for {
		select {
		case resp, ok := <-t.Responses():
			if !ok {
				return Response{}, ErrClosed
			}
			if resp.CorrelationID == req.CorrelationID {
				return resp, nil
			}
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
}
