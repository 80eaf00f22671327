package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CatalogInfo identifies the active meeting catalog. *meeting.Catalog implements it.
type CatalogInfo interface {
	CatalogVersion() string
	CatalogHash() string
}

// CatalogHeaders sets X-Meeting-Catalog-Version and X-Meeting-Catalog-Hash
// (first 12 hex chars) and tags the current span with the full values.
func CatalogHeaders(info CatalogInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, h := info.CatalogVersion(), info.CatalogHash()
			if v != "" {
				w.Header().Set("X-Meeting-Catalog-Version", v)
			}
			if h != "" {
				short := h
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Meeting-Catalog-Hash", short)
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
				if v != "" {
					span.SetAttributes(attribute.String("meeting.catalog.version", v))
				}
				if h != "" {
					span.SetAttributes(attribute.String("meeting.catalog.hash", h))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
