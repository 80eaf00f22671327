package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/pmaas/internal/httpmw"
)

// visitor tracks a single IP's token bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged is reset when the entry is evicted and re-created
	logged bool
}

// FloodGuard holds a token bucket per IP with background eviction of idle IPs.
type FloodGuard struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	// full is set on the first capacity rejection and cleared by eviction
	full bool
	s    settings
}

// NewFloodGuard creates a FloodGuard and starts the eviction goroutine, which
// stops when ctx is cancelled. Defaults: 10 rps, burst 30, ttl 5m, 100000 visitors.
func NewFloodGuard(ctx context.Context, opts ...Option) *FloodGuard {
	s := settings{
		perSecond:   10,
		burst:       30,
		ttl:         5 * time.Minute,
		maxVisitors: 100000,
		rejection:   DefaultRejection,
	}
	apply(&s, opts)
	if s.ttl <= 0 {
		s.ttl = 5 * time.Minute
	}

	g := &FloodGuard{
		visitors: make(map[string]*visitor),
		s:        s,
	}
	go g.cleanup(ctx)
	return g
}

// allow reports whether ip is within its bucket, creating the visitor on
// first sight unless the map is full.
func (g *FloodGuard) allow(ip string) bool {
	g.mu.Lock()
	v, exists := g.visitors[ip]
	if !exists {
		if g.s.maxVisitors > 0 && len(g.visitors) >= g.s.maxVisitors {
			fire := !g.full
			g.full = true
			g.mu.Unlock()
			if fire && g.s.onCapacity != nil {
				g.s.onCapacity()
			}
			if g.s.onDenied != nil {
				g.s.onDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(g.s.perSecond, g.s.burst)}
		g.visitors[ip] = v
	}
	now := g.s.now()
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)

	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// release before hooks, they may log
	g.mu.Unlock()

	if first && g.s.onFirstDenied != nil {
		g.s.onFirstDenied(ip)
	}
	if !allowed && g.s.onDenied != nil {
		g.s.onDenied(ip)
	}
	return allowed
}

// Len returns the number of tracked IPs.
func (g *FloodGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.visitors)
}

func (g *FloodGuard) evict(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for ip, v := range g.visitors {
		if now.Sub(v.lastSeen) > g.s.ttl {
			delete(g.visitors, ip)
		}
	}
	if g.s.maxVisitors <= 0 || len(g.visitors) < g.s.maxVisitors {
		g.full = false
	}
}

// cleanup runs every ttl/2 so stale entries never outlive ttl by much.
func (g *FloodGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(g.s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.evict(g.s.now())
		}
	}
}

// Middleware rejects requests over the per-IP rate with 429.
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allow(httpmw.ClientIPFromContext(r.Context())) {
			writeRejection(w, 30, g.s.rejection)
			return
		}
		next.ServeHTTP(w, r)
	})
}
