package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	view := pauseMap{"lending": true}
	if err := Guard(view, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(view, "governance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReentrancyGuard(t *testing.T) {
	var g ReentrancyGuard
	release, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := g.Enter(); !errors.Is(err, ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", err)
	}
	release()
	if g.Locked() {
		t.Fatalf("guard should be released")
	}
	release, err = g.Enter()
	if err != nil {
		t.Fatalf("re-enter after release: %v", err)
	}
	release()
}
