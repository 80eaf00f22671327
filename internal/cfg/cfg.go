// Package cfg binds service configuration to command line flags with
// environment fallbacks and validates the result.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/pmaas/internal/log"
)

// EnvPrefix is prepended to upper-cased flag names to form env var names.
const EnvPrefix = "PMAAS_"

// Meeting catalog sources accepted by -meetings-source.
const (
	SourceBuiltin = "builtin"
	SourceFile    = "file"
	SourceS3      = "s3"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	TrustedHops       int

	FloodRPS   float64
	FloodBurst int

	// ShutdownDrain is how long readiness fails before listeners close
	ShutdownDrain time.Duration

	MeetingsSource        string
	MeetingsFile          string
	MeetingsSSMParam      string
	MeetingsS3Bucket      string
	MeetingsS3Prefix      string
	MeetingsSigningKeyARN string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "reverse proxies in front of the server whose X-Forwarded-For is trusted (0..8)")
	fs.Float64Var(&c.FloodRPS, "flood-rps", 10, "per-IP requests/sec allowed by the flood guard on the public port")
	fs.IntVar(&c.FloodBurst, "flood-burst", 30, "per-IP burst allowed by the flood guard")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 60*time.Second, "time to fail readiness before closing listeners on shutdown (0..5m)")
	fs.StringVar(&c.MeetingsSource, "meetings-source", SourceBuiltin, "where to load meeting names from: builtin|file|s3")
	fs.StringVar(&c.MeetingsFile, "meetings-file", "", "JSON array of meeting names (meetings-source=file)")
	fs.StringVar(&c.MeetingsSSMParam, "meetings-ssm-param", "/app/pmaas/server/meetings/stable/release/id", "ssm parameter holding the sha256 of the meeting list (meetings-source=s3)")
	fs.StringVar(&c.MeetingsS3Bucket, "meetings-s3-bucket", "", "s3 bucket holding meeting lists (meetings-source=s3)")
	fs.StringVar(&c.MeetingsS3Prefix, "meetings-s3-prefix", "apps/pmaas/server/meetings", "s3 prefix (key) of meeting lists")
	fs.StringVar(&c.MeetingsSigningKeyARN, "meetings-signing-key-arn", "", "KMS key ARN for meeting list signature verification (empty disables)")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvName(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// EnvName maps flag "foo-bar" to PREFIX_FOO_BAR.
func EnvName(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_HOPS %d (must be 0..8)", c.TrustedHops))
	}

	// Flood guard
	if c.FloodRPS <= 0 {
		errs = append(errs, fmt.Errorf("invalid FLOOD_RPS %g (must be > 0)", c.FloodRPS))
	}
	if c.FloodBurst < 1 {
		errs = append(errs, fmt.Errorf("invalid FLOOD_BURST %d (must be >= 1)", c.FloodBurst))
	}

	if c.ShutdownDrain < 0 || c.ShutdownDrain > 5*time.Minute {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_DRAIN %s (must be 0..5m)", c.ShutdownDrain))
	}

	// Meeting catalog source
	switch c.MeetingsSource {
	case SourceBuiltin:
	case SourceFile:
		if c.MeetingsFile == "" {
			errs = append(errs, fmt.Errorf("MEETINGS_FILE required when MEETINGS_SOURCE=file"))
		}
	case SourceS3:
		if c.MeetingsSSMParam == "" {
			errs = append(errs, fmt.Errorf("MEETINGS_SSM_PARAM required when MEETINGS_SOURCE=s3"))
		}
		if c.MeetingsS3Bucket == "" {
			errs = append(errs, fmt.Errorf("MEETINGS_S3_BUCKET required when MEETINGS_SOURCE=s3"))
		}
		if c.MeetingsS3Prefix == "" {
			errs = append(errs, fmt.Errorf("MEETINGS_S3_PREFIX required when MEETINGS_SOURCE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid MEETINGS_SOURCE %q (must be builtin|file|s3)", c.MeetingsSource))
	}
	if c.MeetingsSigningKeyARN != "" && c.MeetingsSource != SourceS3 {
		errs = append(errs, fmt.Errorf("MEETINGS_SIGNING_KEY_ARN only applies to MEETINGS_SOURCE=s3"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
