package httpmw

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/xerrors"
)

// accessWriter counts what the handler wrote.
type accessWriter struct {
	http.ResponseWriter
	code int
	size int64
}

func (aw *accessWriter) status() int {
	if aw.code == 0 {
		return http.StatusOK
	}
	return aw.code
}

func (aw *accessWriter) WriteHeader(code int) {
	if aw.code == 0 {
		aw.code = code
	}
	aw.ResponseWriter.WriteHeader(code)
}

func (aw *accessWriter) Write(b []byte) (int, error) {
	if aw.code == 0 {
		aw.code = http.StatusOK
	}
	n, err := aw.ResponseWriter.Write(b)
	aw.size += int64(n)
	return n, err
}

func (aw *accessWriter) Flush() {
	if f, ok := aw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (aw *accessWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := aw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, xerrors.New("response writer does not support hijacking")
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (aw *accessWriter) Unwrap() http.ResponseWriter { return aw.ResponseWriter }

// AccessLog writes one line per request with status, size, duration and the
// chi route pattern. 5xx responses log at warn and mark the span as failed.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			aw := &accessWriter{ResponseWriter: w}
			next.ServeHTTP(aw, r)

			ctx := r.Context()
			code := aw.status()
			kv := []any{
				"http.response.status_code", code,
				"http.server.request.duration", time.Since(began).Seconds(),
				"http.response.body.size", aw.size,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", routePattern(r),
			}

			span := trace.SpanFromContext(ctx)
			if span.IsRecording() {
				span.SetAttributes(attribute.Int64("http.response.body.size", aw.size))
			}

			L := log.FromContext(ctx)
			if code >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(code))
				L.Warn(ctx, "http request", kv...)
				return
			}
			L.Info(ctx, "http request", kv...)
		})
	}
}
