package health

import (
	"context"
	"sync"

	"github.com/keithlinneman/pmaas/internal/xerrors"
)

// ShutdownGate fails its probe once Set is called. The zero value is open.
type ShutdownGate struct {
	mu       sync.RWMutex
	draining bool
	reason   string
}

// Set starts draining with the given reason ("draining" if empty).
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.draining, g.reason = true, reason
	g.mu.Unlock()
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	g.draining, g.reason = false, ""
	g.mu.Unlock()
}

func (g *ShutdownGate) Draining() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draining
}

// Probe reports the gate state at check time.
func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		draining, reason := g.draining, g.reason
		g.mu.RUnlock()
		if draining {
			return xerrors.New(reason)
		}
		return nil
	}
}
