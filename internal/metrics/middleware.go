package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no route matched, keeping 404 scans from
// creating a series per path.
const unmatchedRoute = "unmatched"

// recorder captures the status and body size written by the handler.
type recorder struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (rec *recorder) WriteHeader(code int) {
	if rec.code == 0 {
		rec.code = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.code == 0 {
		rec.code = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += n
	return n, err
}

func (rec *recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// status is 200 for handlers that never wrote.
func (rec *recorder) status() int {
	if rec.code == 0 {
		return http.StatusOK
	}
	return rec.code
}

// Middleware records inflight, totals, latency, size and 5xx per route. It
// sits outside the chi router, so it seeds a route context that chi fills in.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc := chi.RouteContext(ctx)
		if rc == nil {
			rc = chi.NewRouteContext()
			ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
			r = r.WithContext(ctx)
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		rec := &recorder{ResponseWriter: w}
		began := time.Now()
		next.ServeHTTP(rec, r)
		m.observe(ctx, r.Method, routeLabel(rc), rec, time.Since(began))
	})
}

func routeLabel(rc *chi.Context) string {
	if p := rc.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}

func (m *ServerMetrics) observe(ctx context.Context, method, route string, rec *recorder, took time.Duration) {
	code := rec.status()
	m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	if code >= http.StatusInternalServerError {
		m.errorsTotal.WithLabelValues(method, route).Inc()
	}
	m.respBytes.WithLabelValues(method, route).Observe(float64(rec.bytes))

	dur := m.reqDur.WithLabelValues(method, route)
	ex := traceExemplar(ctx)
	if eo, ok := dur.(prometheus.ExemplarObserver); ok && ex != nil {
		eo.ObserveWithExemplar(took.Seconds(), ex)
		return
	}
	dur.Observe(took.Seconds())
}

// traceExemplar links the latency sample to a sampled trace.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
