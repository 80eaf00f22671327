// Package ratelimit holds the two in-memory, per-client limiters used by the
// public listener.
//
// Window is the meeting quota: a fixed window counter per client key
// (5 requests per 60 seconds for /meeting). It answers every request with a
// Decision and, through its middleware, turns a denial into a 429 carrying
// Retry-After and a JSON Rejection body.
//
// FloodGuard is a token bucket per client IP applied in front of every
// public route. It bounds request floods and the size of its own visitor map;
// it never admits a request the meeting quota would deny because the quota
// runs after it.
//
// Both are single-instance and process-local. State resets on restart and is
// not shared between replicas. Neither protects against distributed attacks
// or bandwidth-bill attacks; that is for upstream filtering.
package ratelimit
