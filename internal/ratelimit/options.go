package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// settings is shared by Window and FloodGuard. Each constructor applies its
// own defaults first; options that do not concern a limiter are ignored.
type settings struct {
	// fixed window
	limit  int
	window time.Duration

	// token bucket
	perSecond   rate.Limit
	burst       int
	ttl         time.Duration
	maxVisitors int

	now       func() time.Time
	rejection Rejection

	onDenied      func(key string)
	onFirstDenied func(key string)
	onCapacity    func()
}

type Option func(*settings)

// WithLimit sets the fixed window policy: at most limit admissions per key
// per window. limit < 1 is treated as 1 and window <= 0 is ignored.
func WithLimit(limit int, window time.Duration) Option {
	return func(s *settings) {
		if limit < 1 {
			limit = 1
		}
		s.limit = limit
		if window > 0 {
			s.window = window
		}
	}
}

// WithRate sets the token bucket size and refill rate.
// WithRate(10, 50) allows 50 requests at once, then refills at 10 per second.
func WithRate(perSecond float64, burst int) Option {
	return func(s *settings) {
		s.perSecond = rate.Limit(perSecond)
		s.burst = burst
	}
}

// WithTTL controls how long an idle IP stays in the flood guard before eviction.
func WithTTL(d time.Duration) Option {
	return func(s *settings) { s.ttl = d }
}

// WithMaxVisitors caps the number of tracked IPs. New IPs are rejected while
// the map is full, existing ones keep their buckets. 0 disables the cap.
func WithMaxVisitors(n int) Option {
	return func(s *settings) { s.maxVisitors = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRejection sets the JSON body written with a 429.
func WithRejection(r Rejection) Option {
	return func(s *settings) { s.rejection = r }
}

// WithOnDenied sets a callback for every denied request, used for prometheus counters.
func WithOnDenied(fn func(key string)) Option {
	return func(s *settings) { s.onDenied = fn }
}

// WithOnFirstDenied sets a callback fired once per bucket when it first
// denies, used for one log line per offender instead of one per request.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(s *settings) { s.onFirstDenied = fn }
}

// WithOnCapacity sets a callback fired when the flood guard first rejects a
// new IP because the visitor map is full. It fires again only after eviction
// has brought the map back under the cap.
func WithOnCapacity(fn func()) Option {
	return func(s *settings) { s.onCapacity = fn }
}

func apply(s *settings, opts []Option) {
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
}
