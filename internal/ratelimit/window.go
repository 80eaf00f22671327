package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/keithlinneman/pmaas/internal/httpmw"
)

const (
	DefaultLimit  = 5
	DefaultWindow = time.Minute
)

// Decision is the outcome of one Admit call. A denial is an expected
// outcome, not an error.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the current window of this key ends.
	ResetAt time.Time
}

// bucket is the per-key fixed window state
type bucket struct {
	count int
	start time.Time
	// logged tracks whether OnFirstDenied already fired for this window
	logged bool
}

// Window is a fixed window counter per client key.
//
// A key gets at most limit admissions between start and start+window, where
// start is the first request after the previous window expired. The window is
// fixed, not sliding: limit requests at the end of one window followed by
// limit right after rollover are all admitted.
type Window struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	s       settings
}

// NewWindow creates a Window and starts its sweep, which deletes expired
// buckets once per window until ctx is cancelled.
func NewWindow(ctx context.Context, opts ...Option) *Window {
	s := settings{
		limit:     DefaultLimit,
		window:    DefaultWindow,
		rejection: DefaultRejection,
	}
	apply(&s, opts)

	w := &Window{
		buckets: make(map[string]*bucket),
		s:       s,
	}
	go w.sweepLoop(ctx)
	return w
}

// Limit returns the admissions allowed per window.
func (w *Window) Limit() int { return w.s.limit }

// Period returns the window length.
func (w *Window) Period() time.Duration { return w.s.window }

// Admit records a request for key and reports whether it is within quota.
// Denied requests do not advance the counter past the limit.
func (w *Window) Admit(key string) Decision {
	now := w.s.now()

	w.mu.Lock()
	b, ok := w.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: now}
		w.buckets[key] = b
	case now.Sub(b.start) >= w.s.window:
		b.count, b.start, b.logged = 0, now, false
	}

	d := Decision{Limit: w.s.limit, ResetAt: b.start.Add(w.s.window)}
	if b.count < w.s.limit {
		b.count++
		d.Allowed = true
		d.Remaining = w.s.limit - b.count
		w.mu.Unlock()
		return d
	}

	first := !b.logged
	b.logged = true
	// hooks may do slow work (logging), never run them under the lock
	w.mu.Unlock()

	if first && w.s.onFirstDenied != nil {
		w.s.onFirstDenied(key)
	}
	if w.s.onDenied != nil {
		w.s.onDenied(key)
	}
	return d
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buckets)
}

// sweep deletes buckets whose window has ended at now and returns how many were removed.
func (w *Window) sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for key, b := range w.buckets {
		if now.Sub(b.start) >= w.s.window {
			delete(w.buckets, key)
			n++
		}
	}
	return n
}

func (w *Window) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.s.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(w.s.now())
		}
	}
}

// Middleware admits or rejects each request using the client IP resolved by
// httpmw.ClientIP. Rejections get a 429 with Retry-After set to the seconds
// left in the window and the configured Rejection as body.
func (w *Window) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		d := w.Admit(httpmw.ClientIPFromContext(r.Context()))
		if !d.Allowed {
			writeRejection(rw, retryAfter(w.s.now(), d.ResetAt), w.s.rejection)
			return
		}
		next.ServeHTTP(rw, r)
	})
}
