package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"
)

// DefaultNavigateTimeout bounds navigation and the wait for load.
const DefaultNavigateTimeout = 30 * time.Second

// Tab is an open page.
type Tab struct {
	Page    *rod.Page
	PageURL string

	hijack *rod.HijackRouter
}

// OpenTab opens a stealth tab, applies resource blocking and navigates to
// pageURL. The load wait is best effort: a slow page is still returned.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b, err := mgr.Browser(ctx)
	if err != nil {
		return nil, err
	}

	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: p, PageURL: pageURL}

	if len(mgr.cfg.Block) > 0 {
		t.hijack = blockResources(p, mgr.cfg.Block)
	}

	navCtx, cancel := context.WithTimeout(ctx, DefaultNavigateTimeout)
	defer cancel()

	if err := p.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// Close stops request interception and closes the tab.
func (t *Tab) Close() error {
	if t.hijack != nil {
		t.hijack.Stop()
		t.hijack = nil
	}
	if t.Page == nil {
		return nil
	}
	err := t.Page.Close()
	t.Page = nil
	return err
}
