package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pmaas/internal/httpmw"
	"github.com/keithlinneman/pmaas/internal/log"
)

type Options struct {
	Logger log.Logger
	// Port defaults to 8080
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	// FloodGuardMW runs after client IP resolution on every request
	FloodGuardMW func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// APIRoutes mounts the meeting API on the router
	APIRoutes   func(chi.Router)
	CatalogInfo httpmw.CatalogInfo // X-Meeting-Catalog-Version and X-Meeting-Catalog-Hash
}
