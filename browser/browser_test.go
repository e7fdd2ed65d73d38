package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"Images", " fonts", "media"})
	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", true},
		{"Stylesheet", false},
		{"Script", false},
		{"Document", false},
	}
	for _, c := range cases {
		if got := shouldBlock(set, c.resType); got != c.want {
			t.Errorf("shouldBlock(%q): got %v, want %v", c.resType, got, c.want)
		}
	}
}

func TestDecodeEvent(t *testing.T) {
	cases := []struct {
		payload string
		want    event
		wantErr bool
	}{
		{payload: `{"type":"move","ref":3}`, want: event{Type: eventMove, Ref: 3}},
		{payload: `{"type":"click","ref":7}`, want: event{Type: eventClick, Ref: 7}},
		{payload: `{"type":"key","key":"Escape"}`, want: event{Type: eventKey, Key: "Escape"}},
		{payload: `{"type":"move"}`, wantErr: true},
		{payload: `{"type":"key"}`, wantErr: true},
		{payload: `{"type":"scroll","ref":1}`, wantErr: true},
		{payload: `not json`, wantErr: true},
	}
	for _, c := range cases {
		got, err := decodeEvent(c.payload)
		if c.wantErr {
			if err == nil {
				t.Errorf("decodeEvent(%s): expected error, got %+v", c.payload, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("decodeEvent(%s): %v", c.payload, err)
			continue
		}
		if got != c.want {
			t.Errorf("decodeEvent(%s): got %+v, want %+v", c.payload, got, c.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("headful") != Headful {
		t.Fatal("headful: wrong mode")
	}
	if ParseMode("") != Headless || ParseMode("bogus") != Headless {
		t.Fatal("default: want headless")
	}
	if Headful.String() != "headful" || Headless.String() != "headless" {
		t.Fatal("String: mismatch")
	}
}

func TestManager_ClosedRefuses(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Browser(t.Context()); err == nil {
		t.Fatal("Browser after Close: expected error")
	}
}

func TestParseDisplay(t *testing.T) {
	good := map[string]int{":0": 0, ":99": 99, ":99.0": 99}
	for in, want := range good {
		n, err := ParseDisplay(in)
		if err != nil || n != want {
			t.Errorf("ParseDisplay(%q): got %d, %v, want %d", in, n, err, want)
		}
	}
	for _, in := range []string{"", "99", ":", ":x", "host:1", ":-1"} {
		if _, err := ParseDisplay(in); err == nil {
			t.Errorf("ParseDisplay(%q): expected error", in)
		}
	}
}

func TestWaitSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "X42")
	go func() {
		time.Sleep(2 * xvfbPoll)
		os.WriteFile(sock, nil, 0o600)
	}()
	if err := waitSocket(context.Background(), sock, nil, 5*time.Second); err != nil {
		t.Fatalf("waitSocket: %v", err)
	}

	exited := make(chan struct{})
	close(exited)
	err := waitSocket(context.Background(), filepath.Join(dir, "X43"), exited, 5*time.Second)
	if !errors.Is(err, errServerExited) {
		t.Fatalf("exited server: got %v, want %v", err, errServerExited)
	}

	err = waitSocket(context.Background(), filepath.Join(dir, "X44"), nil, 2*xvfbPoll)
	if err == nil {
		t.Fatal("timeout: expected error")
	}
}

func TestStartXvfb_ReusesServedDisplay(t *testing.T) {
	dir := t.TempDir()
	old := x11SocketDir
	x11SocketDir = dir
	defer func() { x11SocketDir = old }()
	if err := os.WriteFile(filepath.Join(dir, "X7"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(Config{XvfbDisplay: ":7"})
	if err := m.startXvfb(context.Background()); err != nil {
		t.Fatalf("startXvfb: %v", err)
	}
	if m.xvfb != nil {
		t.Fatal("started a server on a display that already had one")
	}
	m.stopXvfb()
}
