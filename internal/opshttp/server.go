// Package opshttp serves metrics, health and pprof on the admin port.
package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/keithlinneman/pmaas/internal/health"
	"github.com/keithlinneman/pmaas/internal/httpmw"
	"github.com/keithlinneman/pmaas/internal/httpserver"
	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/xerrors"
)

// NewHandler builds the ops mux behind recover, request id and the
// non-public network check.
func NewHandler(l log.Logger, opts Options) http.Handler {
	if l == nil {
		l = log.Nop()
	}
	mux := http.NewServeMux()
	mux.Handle("/-/healthy", health.HealthzHandler(opts.Health))
	mux.Handle("/-/ready", health.ReadyzHandler(opts.Readiness))
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		// shadow so the path does not fall through to another handler
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	return httpmw.Chain(mux,
		httpmw.Recover(l, opts.OnPanic),
		httpmw.RequestID("X-Request-Id"),
		func(next http.Handler) http.Handler { return requireNonPublicNetwork(l, next) },
	)
}

// Start listens on the admin port. The returned stop func is idempotent.
func Start(ctx context.Context, l log.Logger, opts Options) (func(context.Context) error, error) {
	if l == nil {
		l = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	addr := fmt.Sprintf(":%d", port)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
	}
	srv := httpserver.NewServer(addr, NewHandler(l, opts))
	return httpserver.Serve(ctx, l, "ops http server", srv, ln), nil
}
