package httpmw

import (
	"context"
	"net/http"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/keithlinneman/pmaas/internal/log"
)

type entry struct {
	level string
	msg   string
	err   error
	kv    []any
}

// captureLogger records every call. With returns the same logger with the
// extra fields remembered separately, so tests can inspect both.
type captureLogger struct {
	mu      sync.Mutex
	entries []entry
	withs   [][]any
}

func (c *captureLogger) With(kv ...any) log.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withs = append(c.withs, kv)
	return c
}

func (c *captureLogger) add(e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func (c *captureLogger) Debug(_ context.Context, msg string, kv ...any) {
	c.add(entry{level: "debug", msg: msg, kv: kv})
}

func (c *captureLogger) Info(_ context.Context, msg string, kv ...any) {
	c.add(entry{level: "info", msg: msg, kv: kv})
}

func (c *captureLogger) Warn(_ context.Context, msg string, kv ...any) {
	c.add(entry{level: "warn", msg: msg, kv: kv})
}

func (c *captureLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	c.add(entry{level: "error", msg: msg, err: err, kv: kv})
}

func (c *captureLogger) Sync() error { return nil }

func (c *captureLogger) all() []entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entry(nil), c.entries...)
}

func (c *captureLogger) last() (entry, bool) {
	es := c.all()
	if len(es) == 0 {
		return entry{}, false
	}
	return es[len(es)-1], true
}

// withField looks a key up across all With calls, latest first.
func (c *captureLogger) withField(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.withs) - 1; i >= 0; i-- {
		if v, ok := field(c.withs[i], key); ok {
			return v, true
		}
	}
	return nil, false
}

func field(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// withCapture injects l as the request logger, standing in for WithLogger.
func withCapture(l log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context(), l)))
	})
}

// newRecordingSpan starts a real, recording span the test must end.
func newRecordingSpan(t *testing.T, name string) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, _ := tp.Tracer("test").Start(context.Background(), name)
	return ctx, sr
}

var noop = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
