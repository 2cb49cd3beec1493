package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func captureOutput(config Config) *bytes.Buffer {
	Initialize(config)
	var buf bytes.Buffer
	SetOutput(&buf)
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(Config{Level: WarnLevel})

	Debug("not shown")
	Info("not shown either")
	Warn("shown")
	Error("also shown")

	out := buf.String()
	if strings.Contains(out, "not shown") {
		t.Errorf("low-severity messages leaked through: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "also shown") {
		t.Errorf("expected warn and error messages, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"trace", TraceLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{" Error ", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if TraceLevel.String() != "TRACE" || ErrorLevel.String() != "ERROR" {
		t.Error("unexpected level strings")
	}
	if Level(99).String() != "UNKNOWN" {
		t.Error("out-of-range level should be UNKNOWN")
	}
}

func TestPrettyFormatFieldsSorted(t *testing.T) {
	buf := captureOutput(Config{Level: InfoLevel, Component: "scan"})

	Info("file processed",
		String("zeta", "last"),
		String("alpha", "first"),
		Int("count", 3),
	)

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("missing level tag: %q", out)
	}
	if !strings.Contains(out, "scan:") {
		t.Errorf("missing component: %q", out)
	}
	if !strings.Contains(out, "{alpha=first, count=3, zeta=last}") {
		t.Errorf("fields not in sorted order: %q", out)
	}
}

func TestDryRunMarker(t *testing.T) {
	buf := captureOutput(Config{Level: InfoLevel, DryRun: true})
	Info("would mutate")
	if !strings.Contains(buf.String(), "[DRY-RUN]") {
		t.Errorf("missing dry-run marker: %q", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	buf := captureOutput(Config{Level: InfoLevel, JSON: true, Component: "fix"})

	Warn("site fix failed", String("file", "a.txt"), Err(errors.New("denied")))

	var entry Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Message != "site fix failed" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["file"] != "a.txt" || entry.Fields["error"] != "denied" {
		t.Errorf("unexpected fields: %+v", entry.Fields)
	}
}
