package compick

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/bridge"
	"github.com/hazyhaar/compick/history"
	"github.com/hazyhaar/compick/report"
)

const (
	shopURL  = "https://shop.test/"
	plainURL = "https://plain.test/"
	vueURL   = "https://vue.test/"
)

const shopHTML = `<html><body>
<div id="root"><ul id="list"><li id="item"><button id="buy">Buy</button></li></ul></div>
<p id="stray"></p>
</body></html>`

const shopScript = `
function fiber(type, parent) { return { type: type, elementType: type, return: parent }; }
function Shop() {}
function ProductList() {}
function ProductCard() {}
const hostRoot = fiber(null, null);
const shop = fiber(Shop, hostRoot);
const list = fiber(ProductList, shop);
const ul = fiber("ul", list);
const card = fiber(ProductCard, ul);
const li = fiber("li", card);
document.getElementById("buy")["__reactFiber$x1"] = fiber("button", li);
document.getElementById("item")["__reactFiber$x1"] = li;
document.getElementById("list")["__reactFiber$x1"] = ul;
document.getElementById("root")["__reactContainer$x1"] = hostRoot;
window.__REACT_DEVTOOLS_GLOBAL_HOOK__ = { renderers: new Map([[1, {}]]) };
`

const vueHTML = `<html><body><div id="app"><section id="panel"><a id="link">x</a></section></div></body></html>`

const vueScript = `
const app = { type: { name: "App" }, parent: null };
const panel = { type: { __name: "SettingsPanel" }, parent: app };
document.getElementById("panel").__vueParentComponent = panel;
window.__VUE__ = true;
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpener() *SandboxOpener {
	return NewSandboxOpener(map[string]SandboxPage{
		shopURL:  {HTML: shopHTML, Script: shopScript},
		plainURL: {HTML: `<html><body><div id="root"><p id="x">static</p></div></body></html>`},
		vueURL:   {HTML: vueHTML, Script: vueScript},
	})
}

func testService(t *testing.T, opts ...ServiceOption) (*Service, *history.Store) {
	t.Helper()
	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	all := append([]ServiceOption{
		WithOpener(testOpener()),
		WithHistory(store),
		WithIDs(bridge.NewIDs(bridge.Sequence())),
		WithServiceLogger(quietLogger()),
	}, opts...)
	s, err := NewService(nil, all...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, store
}

func TestResolve_React(t *testing.T) {
	var seen []report.Outcome
	s, _ := testService(t, WithSinks(report.Callback(func(_ context.Context, o report.Outcome) error {
		seen = append(seen, o)
		return nil
	})))

	out, err := s.Resolve(context.Background(), shopURL, "#buy", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.OK() {
		t.Fatalf("outcome: got %+v", out)
	}
	if out.Path != "Shop > ProductList > ProductCard" {
		t.Errorf("Path: got %q", out.Path)
	}
	if out.Framework != string(ancestry.React) {
		t.Errorf("Framework: got %q", out.Framework)
	}
	if out.ID != "pick_1" || out.PageURL != shopURL {
		t.Errorf("ID/PageURL: got %q %q", out.ID, out.PageURL)
	}
	if len(seen) != 1 || seen[0].Path != out.Path {
		t.Fatalf("sink: got %+v", seen)
	}
}

func TestResolve_Depth(t *testing.T) {
	s, _ := testService(t)
	out, err := s.Resolve(context.Background(), shopURL, "#buy", 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Path != "ProductList > ProductCard" {
		t.Fatalf("Path: got %q, want %q", out.Path, "ProductList > ProductCard")
	}
}

func TestResolve_ConfiguredDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Depth = 1
	s, err := NewService(cfg, WithOpener(testOpener()), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	out, err := s.Resolve(context.Background(), vueURL, "#link", ConfiguredDepth)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Path != "SettingsPanel" || out.Framework != "vue" {
		t.Fatalf("outcome: got %+v", out)
	}

	// An explicit 0 keeps the whole chain whatever the configuration says.
	out, err = s.Resolve(context.Background(), vueURL, "#link", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Path != "App > SettingsPanel" {
		t.Fatalf("Path: got %q, want %q", out.Path, "App > SettingsPanel")
	}
}

func TestResolve_NoFrameworkIsOutcomeError(t *testing.T) {
	s, store := testService(t)
	out, err := s.Resolve(context.Background(), shopURL, "#stray", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.OK() || out.Error != bridge.ErrNoFramework.Error() {
		t.Fatalf("outcome: got %+v", out)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("failed pick recorded: count %d", n)
	}
}

func TestResolve_NoElement(t *testing.T) {
	s, _ := testService(t)
	_, err := s.Resolve(context.Background(), shopURL, "#missing", 0)
	if !errors.Is(err, ErrNoElement) {
		t.Fatalf("got %v, want ErrNoElement", err)
	}
}

func TestResolve_UnknownPage(t *testing.T) {
	s, _ := testService(t)
	_, err := s.Resolve(context.Background(), "https://nowhere.test/", "#x", 0)
	if err == nil || !strings.Contains(err.Error(), "no page") {
		t.Fatalf("got %v, want a no page error", err)
	}
}

func TestResolve_NameFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NameFilter = `name != "ProductList"`
	s, err := NewService(cfg, WithOpener(testOpener()), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	out, err := s.Resolve(context.Background(), shopURL, "#buy", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Path != "Shop > ProductCard" {
		t.Fatalf("Path: got %q", out.Path)
	}
}

func TestProbe(t *testing.T) {
	s, _ := testService(t)
	cases := []struct {
		url     string
		present bool
		fw      ancestry.Framework
	}{
		{shopURL, true, ancestry.React},
		{vueURL, true, ancestry.Vue},
		{plainURL, false, ""},
	}
	for _, c := range cases {
		got, err := s.Probe(context.Background(), c.url)
		if err != nil {
			t.Fatalf("Probe(%s): %v", c.url, err)
		}
		if got.Present != c.present || got.Framework != c.fw {
			t.Errorf("Probe(%s): got %+v, want present=%v framework=%q", c.url, got, c.present, c.fw)
		}
	}
}

func TestHistory_RecordsSuccessfulResolves(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	s.Resolve(ctx, shopURL, "#buy", 0)
	s.Resolve(ctx, shopURL, "#stray", 0)
	s.Resolve(ctx, vueURL, "#link", 0)

	entries, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].Path != "App > SettingsPanel" || entries[1].Path != "Shop > ProductList > ProductCard" {
		t.Fatalf("order: got %q then %q", entries[0].Path, entries[1].Path)
	}

	n, err := s.ClearHistory(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ClearHistory: got %d, %v", n, err)
	}
	entries, _ = s.History(ctx, 0)
	if len(entries) != 0 {
		t.Fatalf("after clear: got %d entries", len(entries))
	}
}

func TestHistory_Disabled(t *testing.T) {
	s, err := NewService(nil, WithOpener(testOpener()), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := s.History(context.Background(), 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History: got %v, want ErrNoHistory", err)
	}
	if _, err := s.ClearHistory(context.Background()); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("ClearHistory: got %v, want ErrNoHistory", err)
	}
}

func TestNewService_NeedsOpener(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error without opener or browser")
	}
}

func TestPick_NeedsBrowser(t *testing.T) {
	s, _ := testService(t)
	if _, err := s.Pick(context.Background(), shopURL, 0); err == nil {
		t.Fatal("expected error without browser")
	}
}

func TestSandboxOpener_Files(t *testing.T) {
	dir := t.TempDir()
	htmlPath := dir + "/page.html"
	scriptPath := dir + "/page.js"
	writeFile(t, htmlPath, vueHTML)
	writeFile(t, scriptPath, vueScript)

	o := NewSandboxOpener(nil)
	if err := o.AddFiles("file://capture", htmlPath, scriptPath); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	if err := o.AddFiles("file://broken", dir+"/absent.html", ""); err == nil {
		t.Fatal("AddFiles on a missing file: expected error")
	}

	s, err := NewService(nil, WithOpener(o), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	out, err := s.Resolve(context.Background(), "file://capture", "#link", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Path != "App > SettingsPanel" {
		t.Fatalf("Path: got %q", out.Path)
	}
}
