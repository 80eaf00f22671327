package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/pmaas/internal/xerrors"
)

func newJSONLogger(t *testing.T, opts Options) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	opts.JSON = true
	if opts.App == "" {
		opts.App = "test"
	}
	l, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

// lines decodes one JSON object per written line
func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("decode %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"  warn\n", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"", 0, true},
		{"trace", 0, true},
		{"info error", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel_ErrorListsValidLevels(t *testing.T) {
	_, err := ParseLevel("bogus")
	if err == nil || !strings.Contains(err.Error(), "bogus") || !strings.Contains(err.Error(), "debug|info|warn|error") {
		t.Fatalf("err = %v", err)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newJSONLogger(t, Options{Level: slog.LevelWarn})
	ctx := context.Background()
	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	l.Warn(ctx, "w")
	l.Error(ctx, nil, "e")

	got := lines(t, buf)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (warn+error)", len(got))
	}
	if got[0]["msg"] != "w" || got[1]["msg"] != "e" {
		t.Fatalf("records = %v", got)
	}
}

func TestBaseAttrs(t *testing.T) {
	l, buf := newJSONLogger(t, Options{App: "pmaas", Version: "1.2.3", Commit: "abc"})
	l.Info(context.Background(), "hello", "k", "v")

	rec := lines(t, buf)[0]
	for k, want := range map[string]string{"app": "pmaas", "version": "1.2.3", "commit": "abc", "k": "v"} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %q", k, rec[k], want)
		}
	}
	if _, ok := rec["source"]; !ok {
		t.Error("source attr missing")
	}
}

func TestWith_CopyOnWrite(t *testing.T) {
	l, buf := newJSONLogger(t, Options{})
	a := l.With("component", "a")
	b := a.With("extra", 1)
	a.Info(context.Background(), "from a")
	b.Info(context.Background(), "from b")

	got := lines(t, buf)
	if _, leaked := got[0]["extra"]; leaked {
		t.Fatal("child attrs leaked into parent")
	}
	if got[1]["component"] != "a" || got[1]["extra"] != float64(1) {
		t.Fatalf("child record = %v", got[1])
	}
}

func TestWith_IgnoresBadPairs(t *testing.T) {
	l, buf := newJSONLogger(t, Options{})
	l.With(42, "x", "orphan").Info(context.Background(), "m", "dangling")

	rec := lines(t, buf)[0]
	if _, ok := rec["orphan"]; ok {
		t.Error("odd trailing key should be dropped")
	}
	if _, ok := rec["dangling"]; ok {
		t.Error("odd trailing kv should be dropped")
	}
}

func TestError_EnrichesRecord(t *testing.T) {
	l, buf := newJSONLogger(t, Options{IncludeErrorLinks: true})
	root := errors.New("no such key")
	err := xerrors.Wrap(xerrors.WithStack(root), "load catalog")
	l.Error(context.Background(), err, "startup failed", "catalog", "s3")

	rec := lines(t, buf)[0]
	if rec["level"] != "ERROR" {
		t.Fatalf("level = %v", rec["level"])
	}
	if rec["err"] != "load catalog: no such key" {
		t.Errorf("err = %v", rec["err"])
	}
	if rec["error_type"] != "*errors.errorString" {
		t.Errorf("error_type = %v", rec["error_type"])
	}
	chain, _ := rec["error_chain"].([]any)
	if len(chain) != 2 {
		t.Errorf("error_chain = %v, want 2 distinct messages", rec["error_chain"])
	}
	if links, _ := rec["error_links"].([]any); len(links) == 0 {
		t.Error("error_links missing")
	}
	if s, _ := rec["stack"].(string); !strings.Contains(s, "TestError_EnrichesRecord") {
		t.Errorf("stack = %q, want the error capture site", s)
	}
	if rec["catalog"] != "s3" {
		t.Errorf("extra kv lost: %v", rec)
	}
}

func TestError_LinksDisabled(t *testing.T) {
	l, buf := newJSONLogger(t, Options{})
	l.Error(context.Background(), fmt.Errorf("boom"), "failed")
	if _, ok := lines(t, buf)[0]["error_links"]; ok {
		t.Fatal("error_links should be omitted when disabled")
	}
}

func TestTraceHandler_AddsIDs(t *testing.T) {
	l, buf := newJSONLogger(t, Options{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	l.Info(ctx, "traced")
	l.Info(context.Background(), "untraced")

	got := lines(t, buf)
	if got[0]["trace_id"] != sc.TraceID().String() || got[0]["span_id"] != sc.SpanID().String() {
		t.Fatalf("trace fields = %v / %v", got[0]["trace_id"], got[0]["span_id"])
	}
	if _, ok := got[1]["trace_id"]; ok {
		t.Fatal("trace_id without a span context")
	}
}

func TestStackHandler_OnlyAtLevel(t *testing.T) {
	l, buf := newJSONLogger(t, Options{StacktraceLevel: slog.LevelWarn})
	ctx := context.Background()
	l.Info(ctx, "no stack")
	l.Warn(ctx, "stack")

	got := lines(t, buf)
	if _, ok := got[0]["stack"]; ok {
		t.Error("info record should not carry a stack")
	}
	if st, _ := got[1]["stack"].(string); !strings.HasPrefix(st, "github.com/keithlinneman/pmaas/internal/log.TestStackHandler_OnlyAtLevel") {
		t.Errorf("warn stack = %q, want it to start at the caller", st)
	}
}

func TestInternalFrame(t *testing.T) {
	tests := map[string]bool{
		"log/slog.(*Logger).log":                                          true,
		"github.com/keithlinneman/pmaas/internal/log.(*slogLogger).Error": true,
		"github.com/keithlinneman/pmaas/internal/log.stackHandler.Handle": true,
		"github.com/keithlinneman/pmaas/internal/log.TestInternalFrame":   false,
		"github.com/keithlinneman/pmaas/internal/log.TestX.func1":         false,
		"github.com/keithlinneman/pmaas/internal/meeting.Load":            false,
		"main.run":                                                        false,
	}
	for fn, want := range tests {
		if got := internalFrame(fn); got != want {
			t.Errorf("internalFrame(%q) = %v, want %v", fn, got, want)
		}
	}
}

func TestErrorChain(t *testing.T) {
	if got := errorChain(errors.New("x")); len(got) != 1 {
		t.Errorf("single = %v", got)
	}
	same := fmt.Errorf("%w", errors.New("dup"))
	if got := errorChain(same); len(got) != 1 {
		t.Errorf("identical messages should collapse, got %v", got)
	}
	joined := errors.Join(errors.New("a"), errors.New("b"))
	if got := errorChain(joined); len(got) != 3 {
		t.Errorf("joined = %v, want whole + 2 members", got)
	}
}

func TestChainLinks_RespectsMax(t *testing.T) {
	err := xerrors.Wrap(xerrors.Wrap(xerrors.Wrap(errors.New("root"), "a"), "b"), "c")
	if got := chainLinks(err, 2); len(got) != 2 {
		t.Fatalf("links = %d, want 2", len(got))
	}
	if got := chainLinks(err, 0); len(got) != 3 {
		t.Fatalf("unbounded links = %d, want 3 wrappers with positions", len(got))
	}
}

func TestClassifyTypes(t *testing.T) {
	if s, r := classifyTypes(nil); s != "" || r != "" {
		t.Fatalf("nil = %q %q", s, r)
	}
	err := fmt.Errorf("outer: %w", io.EOF)
	s, r := classifyTypes(err)
	if s != "*errors.errorString" || r != "*errors.errorString" {
		t.Fatalf("surface=%q root=%q", s, r)
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("empty context should yield Nop")
	}
	l, _ := New(Options{App: "test", Writer: io.Discard})
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("FromContext returned a different logger")
	}
	wrong := context.WithValue(context.Background(), ctxKey{}, "not a logger")
	FromContext(wrong).Info(context.Background(), "safe")
}

func TestNop(t *testing.T) {
	l := Nop().With("a", 1).With("orphan")
	ctx := context.Background()
	l.Debug(ctx, "m")
	l.Info(ctx, "m")
	l.Warn(ctx, "m")
	l.Error(ctx, nil, "m")
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
