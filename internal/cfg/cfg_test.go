package cfg

import (
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet and parses args, keeping
// tests away from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if !c.LogJSON {
		t.Error("LogJSON: want true")
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel: want %q, got %q", "info", c.LogLevel)
	}
	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080, got %d", c.HTTPPort)
	}
	if c.AdminPort != 9000 {
		t.Errorf("AdminPort: want 9000, got %d", c.AdminPort)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true")
	}
	if c.EnablePyroscope || c.EnableTracing {
		t.Error("pyroscope and tracing should default off")
	}
	if c.StacktraceLevel != "error" {
		t.Errorf("StacktraceLevel: want %q, got %q", "error", c.StacktraceLevel)
	}
	if c.TrustedHops != 0 {
		t.Errorf("TrustedHops: want 0, got %d", c.TrustedHops)
	}
	if c.FloodRPS != 10 || c.FloodBurst != 30 {
		t.Errorf("flood guard: want 10/30, got %g/%d", c.FloodRPS, c.FloodBurst)
	}
	if c.ShutdownDrain != time.Minute {
		t.Errorf("ShutdownDrain: want 1m, got %s", c.ShutdownDrain)
	}
	if c.MeetingsSource != SourceBuiltin {
		t.Errorf("MeetingsSource: want %q, got %q", SourceBuiltin, c.MeetingsSource)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-log-json=false",
		"-log-level=debug",
		"-http-port=9090",
		"-admin-port=9100",
		"-trace-sample=0.5",
		"-trusted-hops=2",
		"-flood-rps=2.5",
		"-flood-burst=5",
		"-meetings-source=s3",
		"-meetings-ssm-param=/custom/param",
		"-meetings-s3-bucket=my-bucket",
		"-meetings-s3-prefix=my/prefix",
		"-meetings-signing-key-arn=arn:aws:kms:us-east-2:111122223333:key/abc",
	})

	if c.LogJSON {
		t.Error("LogJSON: want false")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 9090 || c.AdminPort != 9100 {
		t.Errorf("ports: got %d/%d", c.HTTPPort, c.AdminPort)
	}
	if c.TraceSample != 0.5 {
		t.Errorf("TraceSample: want 0.5, got %f", c.TraceSample)
	}
	if c.TrustedHops != 2 {
		t.Errorf("TrustedHops: want 2, got %d", c.TrustedHops)
	}
	if c.FloodRPS != 2.5 || c.FloodBurst != 5 {
		t.Errorf("flood guard: got %g/%d", c.FloodRPS, c.FloodBurst)
	}
	if c.MeetingsSource != SourceS3 || c.MeetingsSSMParam != "/custom/param" ||
		c.MeetingsS3Bucket != "my-bucket" || c.MeetingsS3Prefix != "my/prefix" {
		t.Errorf("meetings s3 config: %+v", c)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName(EnvPrefix, "meetings-s3-bucket"); got != "PMAAS_MEETINGS_S3_BUCKET" {
		t.Fatalf("EnvName = %q", got)
	}
}

func TestFillFromEnv(t *testing.T) {
	pfx := "TESTCFG_"
	t.Setenv(pfx+"LOG_JSON", "false")
	t.Setenv(pfx+"LOG_LEVEL", "debug")
	t.Setenv(pfx+"HTTP_PORT", "8088")
	t.Setenv(pfx+"ENABLE_PPROF", "false")
	t.Setenv(pfx+"TRACE_SAMPLE", "0.25")
	t.Setenv(pfx+"MAX_ERROR_LINKS", "12")
	t.Setenv(pfx+"TRUSTED_HOPS", "1")
	t.Setenv(pfx+"MEETINGS_SOURCE", "file")
	t.Setenv(pfx+"MEETINGS_FILE", "/etc/pmaas/meetings.json")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, pfx, nil)

	if c.LogJSON {
		t.Error("LogJSON: want false from env")
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q, got %q", "debug", c.LogLevel)
	}
	if c.HTTPPort != 8088 {
		t.Errorf("HTTPPort: want 8088, got %d", c.HTTPPort)
	}
	if c.EnablePprof {
		t.Error("EnablePprof: want false from env")
	}
	if c.TraceSample != 0.25 {
		t.Errorf("TraceSample: want 0.25, got %f", c.TraceSample)
	}
	if c.MaxErrorLinks != 12 {
		t.Errorf("MaxErrorLinks: want 12, got %d", c.MaxErrorLinks)
	}
	if c.TrustedHops != 1 {
		t.Errorf("TrustedHops: want 1, got %d", c.TrustedHops)
	}
	if c.MeetingsSource != SourceFile || c.MeetingsFile != "/etc/pmaas/meetings.json" {
		t.Errorf("meetings file config: %q %q", c.MeetingsSource, c.MeetingsFile)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	pfx := "TESTCFG2_"
	t.Setenv(pfx+"HTTP_PORT", "7777")
	t.Setenv(pfx+"LOG_LEVEL", "warn")
	t.Setenv(pfx+"ENABLE_PPROF", "false")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse([]string{"-http-port=9090", "-log-level=debug", "-enable-pprof=true"}); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 9090 {
		t.Errorf("HTTPPort: want 9090 (cli), got %d", c.HTTPPort)
	}
	if c.LogLevel != "debug" {
		t.Errorf("LogLevel: want %q (cli), got %q", "debug", c.LogLevel)
	}
	if !c.EnablePprof {
		t.Error("EnablePprof: want true (cli)")
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 override messages, got %d: %v", len(msgs), msgs)
	}
	for _, msg := range msgs {
		if !strings.Contains(msg, "overrides env") {
			t.Errorf("unexpected override message format: %s", msg)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	pfx := "TESTCFG3_"
	t.Setenv(pfx+"HTTP_PORT", "not-a-number")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}

	var msgs []string
	FillFromEnv(fs, pfx, func(format string, args ...any) {
		msgs = append(msgs, fmt.Sprintf(format, args...))
	})

	if c.HTTPPort != 8080 {
		t.Errorf("HTTPPort: want 8080 (default), got %d", c.HTTPPort)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "ignoring invalid env") {
		t.Fatalf("log messages = %v", msgs)
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
		"-meetings-source=file",
		"-meetings-file=meetings.json",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-include-error-links=true",
		"-max-error-links=0",
		"-trusted-hops=-1",
		"-flood-rps=0",
		"-flood-burst=0",
		"-meetings-source=ftp",
		"-shutdown-drain=1h",
	})

	err := Validate(c)
	for _, sub := range []string{
		"invalid HTTP_PORT",
		"invalid ADMIN_PORT",
		"invalid LOG_LEVEL",
		"invalid STACKTRACE_LEVEL",
		"invalid TRACE_SAMPLE",
		"PYRO_SERVER must be a URL",
		"PYRO_TENANT required",
		"OTLP_ENDPOINT must be host:port",
		"MAX_ERROR_LINKS",
		"invalid TRUSTED_HOPS",
		"invalid FLOOD_RPS",
		"invalid FLOOD_BURST",
		"invalid MEETINGS_SOURCE",
		"invalid SHUTDOWN_DRAIN",
	} {
		wantErrContains(t, err, sub)
	}
}

func TestValidate_SamePorts(t *testing.T) {
	c := newTestConfig(t, []string{"-http-port=9000", "-admin-port=9000"})
	wantErrContains(t, Validate(c), "must differ")
}

func TestValidate_MeetingSources(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"file without path", []string{"-meetings-source=file"}, "MEETINGS_FILE required"},
		{"s3 without bucket", []string{"-meetings-source=s3"}, "MEETINGS_S3_BUCKET required"},
		{"s3 without param", []string{"-meetings-source=s3", "-meetings-s3-bucket=b", "-meetings-ssm-param="}, "MEETINGS_SSM_PARAM required"},
		{"s3 without prefix", []string{"-meetings-source=s3", "-meetings-s3-bucket=b", "-meetings-s3-prefix="}, "MEETINGS_S3_PREFIX required"},
		{"signing key without s3", []string{"-meetings-signing-key-arn=arn:aws:kms:x"}, "only applies to MEETINGS_SOURCE=s3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantErrContains(t, Validate(newTestConfig(t, tt.args)), tt.want)
		})
	}
}
