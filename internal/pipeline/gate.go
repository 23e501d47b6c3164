package pipeline

// gate.go serializes pipeline runs.
//
// A run may be requested by the CLI, the HTTP API, the cron schedule or the
// source-directory watcher. The gate is a one-slot semaphore: blocking callers
// (the CLI) wait for the slot, opportunistic callers (API, schedule, watcher)
// are turned away with core.ErrRunInProgress.
//
// The gate also supports graceful shutdown via WaitForDrain, which blocks
// until the active run completes.

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/dqm/internal/core"
)

// Gate admits one run at a time.
type Gate struct {
	slot chan struct{}

	mu     sync.RWMutex
	active bool
	since  time.Time
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{slot: make(chan struct{}, 1)}
}

// Acquire waits for the slot. Returns ctx.Err() if ctx ends first.
// The caller MUST call Release() when the run completes (use defer).
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		g.mark(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the slot without blocking, or returns core.ErrRunInProgress.
func (g *Gate) TryAcquire() error {
	select {
	case g.slot <- struct{}{}:
		g.mark(true)
		return nil
	default:
		return core.ErrRunInProgress
	}
}

// Release frees the slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (g *Gate) Release() {
	g.mark(false)
	<-g.slot
}

func (g *Gate) mark(active bool) {
	g.mu.Lock()
	g.active = active
	if active {
		g.since = time.Now()
	}
	g.mu.Unlock()
}

// Active reports whether a run holds the slot.
func (g *Gate) Active() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// WaitForDrain blocks until no run is active or ctx is cancelled.
func (g *Gate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !g.Active() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GateStatus is a snapshot of the gate for monitoring.
type GateStatus struct {
	Active bool      `json:"active"`
	Since  time.Time `json:"since,omitzero"`
}

// Status returns the current gate state.
func (g *Gate) Status() GateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.active {
		return GateStatus{}
	}
	return GateStatus{Active: true, Since: g.since}
}
