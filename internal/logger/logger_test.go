package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLoggerWritesStructuredRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.With("component", "writer").Info("opened file", "path", "data_2026-02-13.tsdb")

	out := buf.String()
	for _, want := range []string{`"msg":"opened file"`, `"component":"writer"`, `"path":"data_2026-02-13.tsdb"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestJSONLoggerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestPrettyHandlerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Info("listening", "addr", "127.0.0.1:8080", "note", "with space")

	out := buf.String()
	if !strings.Contains(out, "listening") || !strings.Contains(out, "addr=127.0.0.1:8080") {
		t.Fatalf("output %q", out)
	}
	if !strings.Contains(out, `note="with space"`) {
		t.Fatalf("quoting missing in %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
