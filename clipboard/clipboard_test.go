package clipboard

import (
	"errors"
	"testing"
)

func TestFuncAndMemory(t *testing.T) {
	var m Memory
	var w Writer = &m
	if err := w.Write("App > Nav"); err != nil {
		t.Fatalf("Memory.Write: %v", err)
	}
	if m.Text != "App > Nav" || m.Writes != 1 {
		t.Fatalf("Memory: got %+v", m)
	}

	boom := errors.New("denied")
	w = Func(func(string) error { return boom })
	if err := w.Write("x"); !errors.Is(err, boom) {
		t.Fatalf("Func.Write: got %v, want %v", err, boom)
	}

	if err := (Discard{}).Write("x"); err != nil {
		t.Fatalf("Discard.Write: %v", err)
	}
}
