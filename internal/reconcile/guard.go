package reconcile

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/starford/cardsync/internal/apperr"
)

// Guard admits one sync run at a time. Within a process it uses a mutex;
// when a lock file is configured it also excludes other processes sharing
// the vault.
type Guard struct {
	mu      sync.Mutex
	file    *flock.Flock
	running atomic.Bool
}

// NewGuard returns a Guard. An empty lockPath disables the cross-process lock.
func NewGuard(lockPath string) *Guard {
	g := &Guard{}
	if lockPath != "" {
		g.file = flock.New(lockPath)
	}
	return g
}

// Acquire claims the guard without waiting. It fails with
// apperr.ErrRunInProgress when a run is already active. The returned
// function releases the guard and must be called exactly once.
func (g *Guard) Acquire() (func(), error) {
	if !g.mu.TryLock() {
		return nil, apperr.ErrRunInProgress
	}
	if g.file != nil {
		ok, err := g.file.TryLock()
		if err != nil {
			g.mu.Unlock()
			return nil, fmt.Errorf("reconcile: lock %s: %w", g.file.Path(), err)
		}
		if !ok {
			g.mu.Unlock()
			return nil, apperr.ErrRunInProgress
		}
	}
	g.running.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.running.Store(false)
			if g.file != nil {
				_ = g.file.Unlock()
			}
			g.mu.Unlock()
		})
	}, nil
}

// Running reports whether a run currently holds the guard.
func (g *Guard) Running() bool {
	return g.running.Load()
}
