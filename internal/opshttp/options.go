package opshttp

import (
	"net/http"

	"github.com/keithlinneman/pmaas/internal/health"
)

type Options struct {
	// Port defaults to 9000
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// OnPanic runs after a recovered panic, e.g. to bump a counter
	OnPanic func()
}
