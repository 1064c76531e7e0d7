package common

import (
	"errors"
	"sync"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is a non-blocking lock held for the duration of a mutating
// call. A nested attempt to enter fails instead of waiting.
type ReentrancyGuard struct {
	mu     sync.Mutex
	locked bool
}

// Enter acquires the guard. The returned release must be deferred by the
// caller.
func (g *ReentrancyGuard) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locked {
		return nil, ErrReentrantCall
	}
	g.locked = true
	return func() {
		g.mu.Lock()
		g.locked = false
		g.mu.Unlock()
	}, nil
}

// Locked reports whether a call currently holds the guard.
func (g *ReentrancyGuard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}
