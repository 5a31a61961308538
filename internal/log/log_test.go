package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Info("hidden")
	Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown k=1") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestLoggerFields(t *testing.T) {
	buf := capture(t)

	l := With("module", "crm").With("account", "a1")
	l.Error("request failed", errors.New("boom"), "status", 502, "dangling")
	out := buf.String()
	if !strings.Contains(out, "[ERROR] request failed module=crm account=a1 err=boom status=502") {
		t.Fatalf("unexpected line: %q", out)
	}
	if strings.Contains(out, "dangling") {
		t.Fatalf("odd trailing key should be dropped: %q", out)
	}
}
