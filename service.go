package compick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/browser"
	"github.com/hazyhaar/compick/clipboard"
	"github.com/hazyhaar/compick/history"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/cdp"
	"github.com/hazyhaar/compick/report"
	"github.com/hazyhaar/compick/session"
)

var (
	// ErrNoHistory is returned by history operations when no store is configured.
	ErrNoHistory = errors.New("compick: history disabled")
	// ErrPickCancelled is returned by Pick when picking ends without a click.
	ErrPickCancelled = errors.New("compick: pick cancelled")
	// ErrNoElement is returned by Resolve when the selector matches nothing.
	ErrNoElement = errors.New("compick: no element matches selector")
)

// Service answers lookups for pages produced by its Opener.
type Service struct {
	cfg      *Config
	opener   Opener
	browser  *browser.Manager
	resolver *ancestry.Resolver
	prober   *ancestry.Prober
	history  *history.Store
	extra    []report.Sink
	sinks    *report.Router
	clip     clipboard.Writer
	ids      *bridge.IDs
	logger   *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithOpener sets how URLs become pages. Default: a BrowserOpener over the
// service's browser manager.
func WithOpener(o Opener) ServiceOption { return func(s *Service) { s.opener = o } }

// WithBrowser sets the Chrome manager used by Pick and the default opener.
func WithBrowser(m *browser.Manager) ServiceOption { return func(s *Service) { s.browser = m } }

// WithHistory records successful picks in store.
func WithHistory(store *history.Store) ServiceOption { return func(s *Service) { s.history = store } }

// WithSinks adds outcome sinks.
func WithSinks(sinks ...report.Sink) ServiceOption {
	return func(s *Service) { s.extra = append(s.extra, sinks...) }
}

// WithClipboard sets where interactive picks are copied.
func WithClipboard(w clipboard.Writer) ServiceOption { return func(s *Service) { s.clip = w } }

// WithIDs sets the correlation id source.
func WithIDs(ids *bridge.IDs) ServiceOption { return func(s *Service) { s.ids = ids } }

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

// NewService builds a Service from cfg. A nil cfg means DefaultConfig.
func NewService(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Service{
		cfg:    cfg,
		clip:   clipboard.Discard{},
		ids:    bridge.NewIDs(bridge.UUIDv7()),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.sinks = report.NewRouter(s.logger, s.extra...)

	filter, err := ancestry.CompileNameFilter(cfg.NameFilter)
	if err != nil {
		return nil, fmt.Errorf("compick: name filter: %w", err)
	}
	readers := ancestry.DefaultReaders(cfg.MaxSteps)
	s.resolver = ancestry.NewResolver(
		ancestry.WithReaders(readers...),
		ancestry.WithNameFilter(filter),
		ancestry.WithLogger(s.logger),
	)
	s.prober = ancestry.NewProber(
		ancestry.WithBudget(cfg.Probe.MaxNodes),
		ancestry.WithMountSelectors(cfg.Probe.MountSelectors...),
		ancestry.WithProbeReaders(readers...),
		ancestry.WithProbeLogger(s.logger),
	)

	if s.history != nil {
		s.sinks.Add(history.NewSink(s.history))
	}
	if s.opener == nil {
		if s.browser == nil {
			return nil, fmt.Errorf("compick: service needs an opener or a browser")
		}
		s.opener = BrowserOpener{Manager: s.browser}
	}
	return s, nil
}

// NewServiceFromConfig wires the browser, history and sinks described by
// cfg. stdout sinks write to out, os.Stdout when nil. extra options apply
// last. The caller closes the returned Service.
func NewServiceFromConfig(cfg *Config, logger *slog.Logger, out io.Writer, extra ...ServiceOption) (_ *Service, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		Mode:        browser.ParseMode(cfg.Browser.Mode),
		Bin:         cfg.Browser.Bin,
		Block:       cfg.Browser.Block,
		XvfbDisplay: cfg.Browser.XvfbDisplay,
		Logger:      logger,
	})
	defer func() {
		if err != nil {
			mgr.Close()
		}
	}()
	opts := []ServiceOption{WithBrowser(mgr), WithServiceLogger(logger)}

	if cfg.History.DBPath != "" {
		store, openErr := history.Open(cfg.History.DBPath, history.WithMaxEntries(cfg.History.MaxEntries))
		if openErr != nil {
			return nil, openErr
		}
		defer func() {
			if err != nil {
				store.Close()
			}
		}()
		opts = append(opts, WithHistory(store))
	}
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			opts = append(opts, WithSinks(report.NewStdout(out)))
		case "webhook":
			wopts := []report.WebhookOption{report.WithWebhookLogger(logger)}
			if sc.Retries > 0 {
				wopts = append(wopts, report.WithWebhookRetries(sc.Retries))
			}
			opts = append(opts, WithSinks(report.NewWebhook(sc.URL, wopts...)))
		}
	}
	if cfg.Clipboard {
		opts = append(opts, WithClipboard(clipboard.System{}))
	}
	return NewService(cfg, append(opts, extra...)...)
}

// Close releases the sinks, the history and the browser.
func (s *Service) Close() error {
	err := s.sinks.Close()
	if s.history != nil {
		if herr := s.history.Close(); err == nil {
			err = herr
		}
	}
	if s.browser != nil {
		s.browser.Close()
	}
	return err
}

// ConfiguredDepth asks Resolve and Pick to truncate to session.depth.
const ConfiguredDepth = -1

func (s *Service) depth(d int) int {
	if d < 0 {
		return s.cfg.Session.Depth
	}
	return d
}

// Resolve reports the component ancestry of the first element matching
// selector on url. depth 0 keeps the whole chain and ConfiguredDepth uses
// the configured one. Lookup failures
// are reported in the Outcome; the error is for failures to ask at all.
func (s *Service) Resolve(ctx context.Context, url, selector string, depth int) (report.Outcome, error) {
	depth = s.depth(depth)
	pg, err := s.opener.Open(ctx, url)
	if err != nil {
		return report.Outcome{}, fmt.Errorf("compick: resolve: %w", err)
	}
	defer pg.Close()

	doc := pg.Doc
	el := doc.QuerySelector(selector)
	if err := doc.Err(); err != nil {
		return report.Outcome{}, fmt.Errorf("compick: resolve: %w", err)
	}
	if page.Nil(el) {
		return report.Outcome{}, fmt.Errorf("%w: %q", ErrNoElement, selector)
	}

	for _, old := range doc.QuerySelectorAll("[" + bridge.PickMarker + "]") {
		doc.RemoveAttribute(old, bridge.PickMarker)
	}
	doc.SetAttribute(el, bridge.PickMarker, "true")
	// The lookup may release el's handle, so the marker is found again.
	defer func() {
		for _, m := range doc.QuerySelectorAll("[" + bridge.PickMarker + "]") {
			doc.RemoveAttribute(m, bridge.PickMarker)
		}
	}()

	req := bridge.Request{Kind: bridge.KindPick, CorrelationID: s.ids.New(bridge.KindPick), Depth: depth}
	resp, err := s.exchange(ctx, doc, req)
	if err != nil {
		return report.Outcome{}, fmt.Errorf("compick: resolve: %w", err)
	}

	out := report.Outcome{
		ID:        req.CorrelationID,
		PageURL:   url,
		Path:      resp.Path,
		Framework: resp.Framework,
		Error:     resp.Error,
		Timestamp: time.Now().UTC(),
	}
	if err := s.sinks.Send(ctx, out); err != nil {
		s.logger.Warn("compick: report outcome failed", "id", out.ID, "error", err)
	}
	s.logger.Info("compick: resolved", "url", url, "selector", selector, "path", out.Path, "framework", out.Framework, "error", out.Error)
	return out, nil
}

// Probe reports whether a supported framework runs on url.
func (s *Service) Probe(ctx context.Context, url string) (ancestry.ProbeResult, error) {
	pg, err := s.opener.Open(ctx, url)
	if err != nil {
		return ancestry.ProbeResult{}, fmt.Errorf("compick: probe: %w", err)
	}
	defer pg.Close()

	req := bridge.Request{Kind: bridge.KindProbe, CorrelationID: s.ids.New(bridge.KindProbe)}
	resp, err := s.exchange(ctx, pg.Doc, req)
	if err != nil {
		return ancestry.ProbeResult{}, fmt.Errorf("compick: probe: %w", err)
	}
	if resp.Error != "" {
		return ancestry.ProbeResult{}, fmt.Errorf("compick: probe: %s", resp.Error)
	}
	return ancestry.ProbeResult{Present: resp.Available, Framework: ancestry.Framework(resp.Framework)}, nil
}

// exchange serves one request against doc through a fresh broker and pipe,
// bounded by the lookup timeout.
func (s *Service) exchange(ctx context.Context, doc page.Document, req bridge.Request) (bridge.Response, error) {
	broker := bridge.NewBroker(doc, s.resolver, s.prober, s.logger)
	pipe := bridge.NewPipe(broker.Handle, 1)
	defer pipe.Close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()
	return bridge.Call(ctx, pipe, req)
}

// Pick opens url in Chrome and runs an interactive session until the user
// clicks an element, presses Escape, or ctx ends.
func (s *Service) Pick(ctx context.Context, url string, depth int) (report.Outcome, error) {
	if s.browser == nil {
		return report.Outcome{}, fmt.Errorf("compick: pick: no browser configured")
	}
	depth = s.depth(depth)

	tab, err := browser.OpenTab(ctx, s.browser, url)
	if err != nil {
		return report.Outcome{}, fmt.Errorf("compick: pick: %w", err)
	}
	defer tab.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tab.Page.Context(ctx)
	sessionDoc, brokerDoc := cdp.New(p), cdp.New(p)
	defer sessionDoc.Close()

	broker := bridge.NewBroker(brokerDoc, s.resolver, s.prober, s.logger)
	pipe := bridge.NewPipe(broker.Handle, 4)
	defer pipe.Close()

	picker, err := browser.NewPicker(ctx, sessionDoc, s.logger)
	if err != nil {
		return report.Outcome{}, fmt.Errorf("compick: pick: %w", err)
	}

	outcomes := make(chan report.Outcome, 1)
	cancelled := make(chan struct{}, 1)
	failed := make(chan error, 1)
	sink := report.NewRouter(s.logger, s.sinks, report.Callback(func(_ context.Context, o report.Outcome) error {
		select {
		case outcomes <- o:
		default:
		}
		return nil
	}))

	coord := session.New(session.Config{
		DOM:       sessionDoc,
		Presenter: picker,
		Input:     picker,
		Transport: pipe,
		Clipboard: s.clip,
		Sink:      sink,
		Debounce:  s.cfg.Session.Debounce,
		Depth:     depth,
		PageURL:   url,
		IDs:       s.ids,
		Logger:    s.logger,
		OnIdle: func(pending bool) {
			if !pending {
				select {
				case cancelled <- struct{}{}:
				default:
				}
			}
		},
		OnStartError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()
	coord.Start()
	s.logger.Info("compick: picking", "url", url, "depth", depth)

	var (
		out    report.Outcome
		result error
	)
	select {
	case out = <-outcomes:
	case <-cancelled:
		result = ErrPickCancelled
	case err := <-failed:
		result = fmt.Errorf("compick: pick: %w", err)
	case <-ctx.Done():
		result = ctx.Err()
	}
	cancel()
	<-done
	return out, result
}

// History lists remembered picks, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.List(ctx, limit)
}

// ClearHistory forgets every remembered pick and returns how many there were.
func (s *Service) ClearHistory(ctx context.Context) (int, error) {
	if s.history == nil {
		return 0, ErrNoHistory
	}
	return s.history.Clear(ctx)
}
