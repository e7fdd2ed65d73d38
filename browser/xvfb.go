package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	xvfbScreen       = "1920x1080x24"
	xvfbReadyTimeout = 5 * time.Second
	xvfbPoll         = 50 * time.Millisecond
)

// x11SocketDir is where X servers publish their display sockets.
var x11SocketDir = "/tmp/.X11-unix"

// ParseDisplay validates an X display name such as ":99" or ":99.0" and
// returns its number.
func ParseDisplay(display string) (int, error) {
	rest, ok := strings.CutPrefix(display, ":")
	if !ok {
		return 0, fmt.Errorf("browser: display %q: want \":N\"", display)
	}
	rest, _, _ = strings.Cut(rest, ".")
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("browser: display %q: want \":N\"", display)
	}
	return n, nil
}

func displaySocket(n int) string {
	return filepath.Join(x11SocketDir, "X"+strconv.Itoa(n))
}

// xvfbProc is an Xvfb server this manager started.
type xvfbProc struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *xvfbProc) stop() {
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	<-p.done
}

// startXvfb brings up the display headful Chrome draws on. A display that
// already has a server is used as is and is left running on Close.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	n, err := ParseDisplay(display)
	if err != nil {
		return err
	}
	sock := displaySocket(n)
	if _, err := os.Stat(sock); err == nil {
		m.cfg.Logger.Info("browser: display already served, reusing", "display", display)
		return nil
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", xvfbScreen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb on %s: %w", display, err)
	}
	p := &xvfbProc{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	if err := waitSocket(ctx, sock, p.done, xvfbReadyTimeout); err != nil {
		p.stop()
		if p.err != nil && errors.Is(err, errServerExited) {
			err = fmt.Errorf("%w: %v", err, p.err)
		}
		return fmt.Errorf("xvfb on %s: %w", display, err)
	}
	m.xvfb = p
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	m.xvfb.stop()
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}

var errServerExited = errors.New("server exited before its socket appeared")

// waitSocket polls for path until it exists, the server exits, ctx ends or
// timeout passes.
func waitSocket(ctx context.Context, path string, exited <-chan struct{}, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(xvfbPoll)
	defer tick.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-exited:
			return errServerExited
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("socket %s not ready after %v", path, timeout)
		case <-tick.C:
		}
	}
}
