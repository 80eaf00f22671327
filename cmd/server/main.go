package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/pmaas/internal/cfg"
	"github.com/keithlinneman/pmaas/internal/health"
	"github.com/keithlinneman/pmaas/internal/httpmw"
	"github.com/keithlinneman/pmaas/internal/httpserver"
	"github.com/keithlinneman/pmaas/internal/log"
	"github.com/keithlinneman/pmaas/internal/meeting"
	"github.com/keithlinneman/pmaas/internal/meetinghttp"
	"github.com/keithlinneman/pmaas/internal/metrics"
	"github.com/keithlinneman/pmaas/internal/opshttp"
	"github.com/keithlinneman/pmaas/internal/otelx"
	"github.com/keithlinneman/pmaas/internal/prof"
	"github.com/keithlinneman/pmaas/internal/ratelimit"
	v "github.com/keithlinneman/pmaas/internal/version"
)

const component = "server"

func main() {
	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(v.Get().String())
		return
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}

	os.Exit(run(conf))
}

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, err
	}
	return log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSON:              conf.LogJSON,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		MaxErrorLinks:     conf.MaxErrorLinks,
	})
}

// run returns the process exit code. Deferred shutdowns run before main exits.
func run(conf cfg.App) int {
	vi := v.Get()

	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer lg.Sync()
	L := lg.With("component", component)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trusted_hops", conf.TrustedHops,
		"flood_rps", conf.FloodRPS,
		"flood_burst", conf.FloodBurst,
		"meetings_source", conf.MeetingsSource,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName + "." + component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"version":  vi.Version,
			"commit":   vi.Commit,
			"build_id": vi.BuildId,
		},
	})
	if err != nil {
		// profiling is optional, keep serving without it
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// the collector runs on localhost so the exporter does not use TLS
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, traces will not be exported")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// no listener is opened until the catalog is loaded and non-empty
	catalog, err := loadCatalog(ctx, conf, L)
	if err != nil {
		L.Error(ctx, err, "failed to load meeting catalog", "meetings_source", conf.MeetingsSource)
		return 1
	}
	meta := catalog.Meta()
	m.SetCatalog(string(meta.Source), meta.Version, meta.SHA256, catalog.Len(), meta.LoadedAt)
	L.Info(ctx, "meeting catalog loaded",
		"source", meta.Source,
		"catalog_version", meta.Version,
		"catalog_hash", meta.SHA256,
		"names", catalog.Len(),
	)

	quota, flood := newLimiters(ctx, conf, L, m)
	m.TrackLimiters(quota, flood)

	api := meetinghttp.NewAPI(meetinghttp.Options{
		Logger:   L,
		Catalog:  catalog,
		Quota:    quota,
		OnServed: m.IncMeetingsServed,
		Version:  vi.Version,
	})

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("catalog", health.NonEmpty(catalog, "meeting catalog")),
	)

	publicStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		FloodGuardMW: flood.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		APIRoutes:    api.RegisterRoutes,
		CatalogInfo:  catalog,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		return 1
	}
	defer func() { _ = publicStop(context.Background()) }()

	// the ops port is firewalled to monitoring hosts and additionally
	// rejects public and forwarded clients in middleware
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return 1
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd not notified", "reason", err.Error())
	}

	<-ctx.Done()
	stopSignals()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	drain(bg, L, conf.ShutdownDrain)

	shutdownCtx, cancel := context.WithTimeout(bg, httpserver.DefaultShutdownTimeout)
	defer cancel()
	if err := publicStop(shutdownCtx); err != nil {
		L.Error(bg, err, "public http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
	return 0
}

func loadCatalog(ctx context.Context, conf cfg.App, L log.Logger) (*meeting.Catalog, error) {
	return meeting.Load(ctx, meeting.LoadOptions{
		Source: meeting.Origin(conf.MeetingsSource),
		File:   conf.MeetingsFile,
		S3: meeting.S3Options{
			Logger:        L,
			SSMParam:      conf.MeetingsSSMParam,
			Bucket:        conf.MeetingsS3Bucket,
			Prefix:        conf.MeetingsS3Prefix,
			SigningKeyARN: conf.MeetingsSigningKeyARN,
		},
	})
}

// newLimiters builds the per-client meeting quota and the per-IP flood
// guard in front of it. Both answer a denied /meeting with the cut off body.
func newLimiters(ctx context.Context, conf cfg.App, L log.Logger, m *metrics.ServerMetrics) (*ratelimit.Window, *ratelimit.FloodGuard) {
	quota := ratelimit.NewWindow(ctx, append(meetinghttp.QuotaOptions(),
		ratelimit.WithOnDenied(func(string) { m.IncQuotaDenied() }),
		// logged once per client per window
		ratelimit.WithOnFirstDenied(func(client string) {
			m.IncQuotaCutoff()
			L.Warn(ctx, "client cut off", "client_ip", client)
		}),
	)...)

	flood := ratelimit.NewFloodGuard(ctx,
		ratelimit.WithRate(conf.FloodRPS, conf.FloodBurst),
		ratelimit.WithRejection(meetinghttp.CutOff),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "flood guard triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "flood guard capacity reached, rejecting new visitors until some are evicted")
		}),
	)
	return quota, flood
}

// drain keeps serving with readiness failed so the load balancer stops
// routing here. A second signal cuts it short.
func drain(ctx context.Context, L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(ctx, "draining before closing listeners", "drain", d.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}
