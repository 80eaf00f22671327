// Package metrics owns the prometheus registry served on the ops port.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/pmaas/internal/version"
)

// Sizer reports a live count, read at scrape time.
type Sizer interface{ Len() int }

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http, safe labels only (method, route, status)
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// meeting API
	meetingsServed    prometheus.Counter
	quotaDenied       prometheus.Counter
	quotaFirstDenied  prometheus.Counter
	floodDenied       prometheus.Counter
	floodCapacity     prometheus.Counter
	catalogInfo       *prometheus.GaugeVec
	catalogSize       prometheus.Gauge
	catalogLoadedTime prometheus.Gauge
}

// New returns a fresh registry with the Go and process collectors and every
// server metric registered.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{64, 128, 256, 512, 1024, 4096, 16384},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		meetingsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meetings_served_total",
			Help: "Total meeting names handed out",
		}),
		quotaDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meeting_quota_denied_total",
			Help: "Total meeting requests rejected by the per-client quota",
		}),
		quotaFirstDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meeting_quota_cutoffs_total",
			Help: "Total quota windows in which a client was cut off",
		}),
		floodDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the flood guard",
		}),
		floodCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the flood guard visitor map filled up",
		}),
		catalogInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meeting_catalog_info",
			Help: "Active meeting catalog (labels carry identity, value is always 1)",
		}, []string{"source", "version", "sha256"}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_catalog_names",
			Help: "Number of meeting names in the active catalog",
		}),
		catalogLoadedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meeting_catalog_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the active catalog was loaded",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.panicTotal,
		m.buildInfo,
		m.profilingActive,
		m.meetingsServed,
		m.quotaDenied,
		m.quotaFirstDenied,
		m.floodDenied,
		m.floodCapacity,
		m.catalogInfo,
		m.catalogSize,
		m.catalogLoadedTime,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.panicTotal.Inc() }

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncMeetingsServed() { m.meetingsServed.Inc() }

func (m *ServerMetrics) IncQuotaDenied() { m.quotaDenied.Inc() }

func (m *ServerMetrics) IncQuotaCutoff() { m.quotaFirstDenied.Inc() }

func (m *ServerMetrics) IncRateLimitDenied() { m.floodDenied.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity() { m.floodCapacity.Inc() }

// SetCatalog records the active catalog. It is called once, the catalog is
// never swapped while serving.
func (m *ServerMetrics) SetCatalog(source, ver, sha256 string, size int, loadedAt time.Time) {
	m.catalogInfo.Reset()
	m.catalogInfo.WithLabelValues(source, ver, sha256).Set(1)
	m.catalogSize.Set(float64(size))
	if !loadedAt.IsZero() {
		m.catalogLoadedTime.Set(float64(loadedAt.Unix()))
	}
}

// TrackLimiters exports the live bucket counts of the meeting quota and the
// flood guard. Nil sizers are skipped.
func (m *ServerMetrics) TrackLimiters(quota, flood Sizer) {
	if quota != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "meeting_quota_clients",
			Help: "Clients with a live quota window",
		}, func() float64 { return float64(quota.Len()) }))
	}
	if flood != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "flood_guard_visitors",
			Help: "IPs tracked by the flood guard",
		}, func() float64 { return float64(flood.Len()) }))
	}
}
