package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRouter_FanOutAndFirstError(t *testing.T) {
	var got []string
	record := func(name string, err error) Sink {
		return Callback(func(_ context.Context, o Outcome) error {
			got = append(got, name+":"+o.Path)
			return err
		})
	}
	boom := errors.New("boom")
	r := NewRouter(nil, record("a", nil), record("b", boom), record("c", errors.New("later")))

	err := r.Send(context.Background(), Outcome{ID: "pick_1", Path: "App > Nav"})
	if !errors.Is(err, boom) {
		t.Fatalf("Send: got %v, want first error", err)
	}
	if len(got) != 3 {
		t.Fatalf("fan-out: got %v, want all three sinks called", got)
	}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.Send(context.Background(), Outcome{ID: "pick_1", Path: "App", Framework: "vue", Timestamp: ts}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send(context.Background(), Outcome{ID: "pick_2", Error: "no components found in ancestor tree", Timestamp: ts}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	var first Outcome
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !first.OK() || first.Framework != "vue" {
		t.Fatalf("first outcome: got %+v", first)
	}
	if bytes.Contains(lines[1], []byte(`"path"`)) {
		t.Fatalf("error outcome should omit path: %s", lines[1])
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: got %q", r.Header.Get("Content-Type"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), Outcome{ID: "pick_1", Path: "App"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("attempts: got %d, want 3", n)
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), Outcome{ID: "pick_1"}); err == nil {
		t.Fatal("Send: expected error after retries")
	}
}
