// Command compick reports which UI framework components rendered an element.
//
// Usage:
//
//	compick -pick https://example.com                      # point and click in a visible Chrome
//	compick -resolve https://example.com -selector '#buy'  # one-shot lookup
//	compick -probe https://example.com                     # is a supported framework running?
//	compick -history                                       # recent picks
//	compick -mcp -http :8080                               # serve MCP on stdio and the HTTP API
//
// -html/-script swap Chrome for a captured page served under the given URL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/compick"
)

var version = "dev"

type options struct {
	configPath string
	pickURL    string
	resolveURL string
	selector   string
	probeURL   string
	history    bool
	clear      bool
	limit      int
	depth      int
	mcp        bool
	httpAddr   string
	htmlPath   string
	scriptPath string
	headful    bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to compick.yaml")
	flag.StringVar(&o.pickURL, "pick", "", "open URL and pick an element interactively")
	flag.StringVar(&o.resolveURL, "resolve", "", "resolve the element matching -selector on URL")
	flag.StringVar(&o.selector, "selector", "", "CSS selector for -resolve")
	flag.StringVar(&o.probeURL, "probe", "", "detect the framework running on URL")
	flag.BoolVar(&o.history, "history", false, "list recent picks")
	flag.BoolVar(&o.clear, "clear-history", false, "forget recent picks")
	flag.IntVar(&o.limit, "limit", 0, "max entries for -history (0 = all)")
	flag.IntVar(&o.depth, "depth", compick.ConfiguredDepth, "keep only the N components nearest the element (0 = all, -1 = config)")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio")
	flag.StringVar(&o.httpAddr, "http", "", "serve the HTTP API on this address")
	flag.StringVar(&o.htmlPath, "html", "", "captured page markup (replaces Chrome)")
	flag.StringVar(&o.scriptPath, "script", "", "captured page instrumentation script")
	flag.BoolVar(&o.headful, "headful", false, "run a visible Chrome (implied by -pick)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("compick: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := compick.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = compick.LoadConfigFile(o.configPath); err != nil {
			return err
		}
	}
	if o.headful || o.pickURL != "" {
		cfg.Browser.Mode = "headful"
	}

	// MCP owns stdout; outcome lines go to stderr then.
	var out io.Writer = os.Stdout
	if o.mcp {
		out = os.Stderr
	}

	var extra []compick.ServiceOption
	if o.htmlPath != "" {
		key := firstNonEmpty(o.resolveURL, o.probeURL, "sandbox")
		opener := compick.NewSandboxOpener(nil)
		if err := opener.AddFiles(key, o.htmlPath, o.scriptPath); err != nil {
			return err
		}
		extra = append(extra, compick.WithOpener(opener))
	}

	svc, err := compick.NewServiceFromConfig(cfg, logger, out, extra...)
	if err != nil {
		return err
	}
	defer svc.Close()

	switch {
	case o.mcp || o.httpAddr != "":
		return serve(ctx, logger, svc, o)
	case o.pickURL != "":
		res, err := svc.Pick(ctx, o.pickURL, o.depth)
		if errors.Is(err, compick.ErrPickCancelled) {
			logger.Info("compick: pick cancelled")
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(res)
	case o.resolveURL != "":
		if o.selector == "" {
			return fmt.Errorf("-resolve needs -selector")
		}
		res, err := svc.Resolve(ctx, o.resolveURL, o.selector, o.depth)
		if err != nil {
			return err
		}
		return printJSON(res)
	case o.probeURL != "":
		res, err := svc.Probe(ctx, o.probeURL)
		if err != nil {
			return err
		}
		return printJSON(res)
	case o.history:
		entries, err := svc.History(ctx, o.limit)
		if err != nil {
			return err
		}
		return printJSON(entries)
	case o.clear:
		n, err := svc.ClearHistory(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"cleared": n})
	}

	fmt.Fprintln(os.Stderr, "usage: compick -pick <url> | -resolve <url> -selector <css> | -probe <url> | -history | -mcp | -http <addr>")
	flag.PrintDefaults()
	os.Exit(2)
	return nil
}

func serve(ctx context.Context, logger *slog.Logger, svc *compick.Service, o options) error {
	g, gctx := errgroup.WithContext(ctx)

	if o.mcp {
		srv := mcp.NewServer(&mcp.Implementation{Name: "compick", Version: version}, nil)
		svc.RegisterMCP(srv)
		g.Go(func() error {
			logger.Info("compick: mcp serving on stdio")
			return srv.Run(gctx, &mcp.StdioTransport{})
		})
	}

	if o.httpAddr != "" {
		hs := &http.Server{
			Addr:              o.httpAddr,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("compick: http listening", "addr", o.httpAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
