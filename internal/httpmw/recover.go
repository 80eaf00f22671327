package httpmw

import (
	"net/http"

	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500 JSON body.
// onPanic, when set, runs after logging (metrics). http.ErrAbortHandler is
// re-raised so net/http can abort the connection quietly.
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				err, ok := v.(error)
				if ok {
					err = xerrors.Wrap(err, "handler panic")
				} else {
					err = xerrors.Newf("handler panic: %v", v)
				}
				base.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				).Error(r.Context(), xerrors.EnsureTrace(err), "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
