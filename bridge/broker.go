package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/page"
)

// Handler answers one request. ok=false means nothing is emitted.
type Handler func(ctx context.Context, req Request) (resp Response, ok bool)

// Broker serves lookups against one document. Calls are serialised.
type Broker struct {
	mu       sync.Mutex
	doc      page.Document
	resolver *ancestry.Resolver
	prober   *ancestry.Prober
	logger   *slog.Logger
}

// NewBroker returns a broker over doc. Nil resolver or prober get defaults.
func NewBroker(doc page.Document, resolver *ancestry.Resolver, prober *ancestry.Prober, logger *slog.Logger) *Broker {
	if resolver == nil {
		resolver = ancestry.NewResolver()
	}
	if prober == nil {
		prober = ancestry.NewProber()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{doc: doc, resolver: resolver, prober: prober, logger: logger}
}

// Handle answers req. Pick and probe always produce a response; hover
// produces one only for a non-empty ancestry. A panic or document failure
// inside a lookup becomes an error response for pick and probe, and silence
// for hover. Documents that pin handles are told to release them once the
// lookup ends.
func (b *Broker) Handle(ctx context.Context, req Request) (resp Response, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp = Response{Kind: req.Kind, CorrelationID: req.CorrelationID}
	if rel, ok := b.doc.(page.Releaser); ok {
		defer func() {
			if err := rel.ReleaseObjects(); err != nil {
				b.logger.Debug("bridge: release lookup objects", "id", req.CorrelationID, "error", err)
			}
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("bridge: lookup panicked", "kind", req.Kind, "id", req.CorrelationID, "panic", r)
			resp.Error = fmt.Sprintf("lookup failed: %v", r)
			ok = req.Kind != KindHover
		}
	}()

	if err := ctx.Err(); err != nil {
		resp.Error = err.Error()
		return resp, req.Kind != KindHover
	}
	b.doc.ResetErr()

	switch req.Kind {
	case KindPick:
		b.pick(req, &resp)
		return resp, true
	case KindHover:
		return resp, b.hover(req, &resp)
	case KindProbe:
		b.probe(&resp)
		return resp, true
	default:
		resp.Error = fmt.Sprintf("unknown request kind %q", req.Kind)
		return resp, true
	}
}

// ServeJSON is Handle over encoded envelopes. A nil payload with a nil
// error means no response.
func (b *Broker) ServeJSON(ctx context.Context, payload []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("bridge: decode request: %w", err)
	}
	resp, ok := b.Handle(ctx, req)
	if !ok {
		return nil, nil
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("bridge: encode response: %w", err)
	}
	return out, nil
}

func (b *Broker) pick(req Request, resp *Response) {
	el := b.doc.QuerySelector("[" + PickMarker + "]")
	if page.Nil(el) {
		resp.Error = b.failure(ErrNoMarkedElement).Error()
		return
	}

	res, err := b.resolver.Resolve(b.doc, el)
	if err != nil {
		var lerr *ancestry.LookupError
		if errors.As(err, &lerr) {
			resp.Framework = string(lerr.Framework)
		}
		b.logger.Warn("bridge: pick lookup failed", "id", req.CorrelationID, "error", err)
		resp.Error = err.Error()
		return
	}
	if res == nil {
		resp.Error = ErrNoFramework.Error()
		return
	}

	resp.Framework = string(res.Framework)
	if len(res.Components) == 0 {
		resp.Error = ErrNoComponents.Error()
		return
	}
	resp.Components = ancestry.Truncate(res.Components, req.Depth)
	resp.Path = ancestry.JoinPath(resp.Components)
}

func (b *Broker) hover(req Request, resp *Response) bool {
	el := b.doc.QuerySelector("[" + HoverMarker + "]")
	if page.Nil(el) {
		return false
	}
	res, err := b.resolver.Resolve(b.doc, el)
	if err != nil {
		b.logger.Debug("bridge: hover lookup failed", "id", req.CorrelationID, "error", err)
		return false
	}
	if res == nil || len(res.Components) == 0 {
		return false
	}
	resp.Framework = string(res.Framework)
	resp.Components = ancestry.Truncate(res.Components, req.Depth)
	resp.Path = ancestry.JoinPath(resp.Components)
	return true
}

func (b *Broker) probe(resp *Response) {
	res, err := b.prober.Probe(b.doc)
	if err != nil {
		b.logger.Warn("bridge: probe failed", "id", resp.CorrelationID, "error", err)
		resp.Error = err.Error()
		return
	}
	resp.Available = res.Present
	resp.Framework = string(res.Framework)
}

// failure prefers a latched document error over the fallback.
func (b *Broker) failure(fallback error) error {
	if err := b.doc.Err(); err != nil {
		return err
	}
	return fallback
}
