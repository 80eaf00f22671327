// Package httpmw provides HTTP middleware for the public meeting API.
//
// httpserver.NewHandler composes them outermost first: security headers,
// panic recovery, request ID, client IP, flood guard, OTel, trace headers,
// catalog headers, metrics, request logger, access log, then the chi router
// where the meeting quota runs per route.
//
// User-supplied data (query strings, user-agent, arbitrary headers) is kept
// out of logs to avoid PII and log injection.
package httpmw
