package compick

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/compick/browser"
	"github.com/hazyhaar/compick/page"
	"github.com/hazyhaar/compick/page/cdp"
	"github.com/hazyhaar/compick/page/sandbox"
)

// Page is an opened document. Tab is set only for live browser pages.
type Page struct {
	Doc page.Document
	URL string
	Tab *browser.Tab

	close func() error
}

// Close releases the page.
func (p *Page) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// Opener turns a URL into a Page.
type Opener interface {
	Open(ctx context.Context, url string) (*Page, error)
}

// BrowserOpener opens URLs in Chrome tabs.
type BrowserOpener struct {
	Manager *browser.Manager
}

func (o BrowserOpener) Open(ctx context.Context, url string) (*Page, error) {
	tab, err := browser.OpenTab(ctx, o.Manager, url)
	if err != nil {
		return nil, err
	}
	doc := cdp.New(tab.Page.Context(ctx))
	return &Page{
		Doc: doc,
		URL: url,
		Tab: tab,
		close: func() error {
			doc.Close()
			return tab.Close()
		},
	}, nil
}

// SandboxPage is a captured page: markup plus the script that instruments
// it, inline or as files. Files win when HTMLFile is set.
type SandboxPage struct {
	HTML   string
	Script string

	HTMLFile   string
	ScriptFile string
}

// SandboxOpener serves captured pages from memory. Each Open builds a
// fresh document, so marks never leak between calls.
type SandboxOpener struct {
	mu    sync.RWMutex
	pages map[string]SandboxPage
}

// NewSandboxOpener returns an opener serving pages by URL.
func NewSandboxOpener(pages map[string]SandboxPage) *SandboxOpener {
	o := &SandboxOpener{pages: make(map[string]SandboxPage, len(pages))}
	for url, p := range pages {
		o.pages[url] = p
	}
	return o
}

// Add registers or replaces a page.
func (o *SandboxOpener) Add(url string, p SandboxPage) {
	o.mu.Lock()
	o.pages[url] = p
	o.mu.Unlock()
}

// AddFiles registers a page from an HTML file and an optional script file.
func (o *SandboxOpener) AddFiles(url, htmlPath, scriptPath string) error {
	// Parse once up front so a broken capture fails at registration.
	if _, err := sandbox.LoadFiles(htmlPath, scriptPath); err != nil {
		return err
	}
	o.Add(url, SandboxPage{HTMLFile: htmlPath, ScriptFile: scriptPath})
	return nil
}

func (o *SandboxOpener) Open(_ context.Context, url string) (*Page, error) {
	o.mu.RLock()
	p, ok := o.pages[url]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("compick: sandbox: no page for %s", url)
	}

	var (
		doc *sandbox.Document
		err error
	)
	if p.HTMLFile != "" {
		doc, err = sandbox.LoadFiles(p.HTMLFile, p.ScriptFile)
	} else {
		doc, err = sandbox.Load(p.HTML, p.Script)
	}
	if err != nil {
		return nil, err
	}
	return &Page{Doc: doc, URL: url}, nil
}
