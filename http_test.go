package compick

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/compick/ancestry"
	"github.com/hazyhaar/compick/history"
	"github.com/hazyhaar/compick/report"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTP_Resolve(t *testing.T) {
	s, _ := testService(t)
	w := do(t, s.Handler(), "POST", "/resolve", `{"url":"`+shopURL+`","selector":"#buy"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var out report.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Path != "Shop > ProductList > ProductCard" {
		t.Fatalf("Path: got %q", out.Path)
	}
}

func TestHTTP_ResolveDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Depth = 1
	s, err := NewService(cfg, WithOpener(testOpener()), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h := s.Handler()
	cases := []struct {
		name string
		body string
		want string
	}{
		{"omitted uses config", `{"url":"` + shopURL + `","selector":"#buy"}`, "ProductCard"},
		{"zero keeps all", `{"url":"` + shopURL + `","selector":"#buy","depth":0}`, "Shop > ProductList > ProductCard"},
		{"explicit", `{"url":"` + shopURL + `","selector":"#buy","depth":2}`, "ProductList > ProductCard"},
	}
	for _, c := range cases {
		w := do(t, h, "POST", "/resolve", c.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status got %d, body %s", c.name, w.Code, w.Body.String())
		}
		var out report.Outcome
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s: unmarshal: %v", c.name, err)
		}
		if out.Path != c.want {
			t.Errorf("%s: Path got %q, want %q", c.name, out.Path, c.want)
		}
	}
}

func TestHTTP_ResolveErrors(t *testing.T) {
	s, _ := testService(t)
	h := s.Handler()
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing selector", `{"url":"` + shopURL + `"}`, http.StatusBadRequest},
		{"no element", `{"url":"` + shopURL + `","selector":"#gone"}`, http.StatusNotFound},
		{"unknown page", `{"url":"https://nope.test/","selector":"#x"}`, http.StatusBadGateway},
	}
	for _, c := range cases {
		if w := do(t, h, "POST", "/resolve", c.body); w.Code != c.want {
			t.Errorf("%s: status got %d, want %d", c.name, w.Code, c.want)
		}
	}
}

func TestHTTP_Probe(t *testing.T) {
	s, _ := testService(t)
	w := do(t, s.Handler(), "POST", "/probe", `{"url":"`+plainURL+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var res ancestry.ProbeResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Present {
		t.Fatalf("plain page: got %+v", res)
	}
	if !strings.Contains(w.Body.String(), `"available":false`) {
		t.Fatalf("body: got %s", w.Body.String())
	}
}

func TestHTTP_History(t *testing.T) {
	s, _ := testService(t)
	h := s.Handler()
	ctx := context.Background()
	s.Resolve(ctx, shopURL, "#buy", 0)
	s.Resolve(ctx, vueURL, "#link", 0)

	w := do(t, h, "GET", "/history?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var entries []history.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "App > SettingsPanel" {
		t.Fatalf("entries: got %+v", entries)
	}

	if w := do(t, h, "GET", "/history?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}

	w = do(t, h, "DELETE", "/history", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"cleared":2}` {
		t.Fatalf("delete: got %d %s", w.Code, w.Body.String())
	}
}

func TestHTTP_HistoryDisabled(t *testing.T) {
	s, err := NewService(nil, WithOpener(testOpener()), WithServiceLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if w := do(t, s.Handler(), "GET", "/history", ""); w.Code != http.StatusNotImplemented {
		t.Fatalf("status: got %d, want 501", w.Code)
	}
}

func TestHTTP_Health(t *testing.T) {
	s, _ := testService(t)
	if w := do(t, s.Handler(), "GET", "/health", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("health: got %d %q", w.Code, w.Body.String())
	}
}
