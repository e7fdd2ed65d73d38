// Package clipboard is the text sink a successful pick is copied to.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// Writer accepts text and reports whether it was stored.
type Writer interface {
	Write(text string) error
}

// ErrUnsupported means the host offers no clipboard utility (xclip, xsel,
// wl-copy, pbcopy, clip.exe).
var ErrUnsupported = errors.New("clipboard: unsupported on this host")

// System writes to the OS clipboard.
type System struct{}

func (System) Write(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	return nil
}

// Discard accepts everything and stores nothing.
type Discard struct{}

func (Discard) Write(string) error { return nil }

// Func adapts a function.
type Func func(text string) error

func (f Func) Write(text string) error { return f(text) }

// Memory keeps the last text written. Not safe for concurrent use.
type Memory struct {
	Text   string
	Writes int
}

func (m *Memory) Write(text string) error {
	m.Text = text
	m.Writes++
	return nil
}
