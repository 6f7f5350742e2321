package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("text format by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, LevelInfo, "")
		logger.Info("hello", "key", "value")

		out := buf.String()
		if !strings.Contains(out, "level=INFO") {
			t.Errorf("expected text level field, got %q", out)
		}
		if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "key=value") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, LevelInfo, FormatJSON)
		logger.Info("hello", "key", "value")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("failed to parse JSON output: %v", err)
		}
		if entry["msg"] != "hello" {
			t.Errorf("expected msg=hello, got %v", entry["msg"])
		}
		if entry["key"] != "value" {
			t.Errorf("expected key=value, got %v", entry["key"])
		}
	})

	t.Run("defaults to INFO for invalid level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, "invalid", FormatText)
		logger.Debug("hidden")
		logger.Info("shown")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Error("debug message should be filtered at INFO")
		}
		if !strings.Contains(out, "shown") {
			t.Error("info message should be written")
		}
	})
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    string
		wantLogs []string
		skipLogs []string
	}{
		{LevelTrace, []string{"trace", "debug", "info", "warn", "error"}, nil},
		{LevelDebug, []string{"debug", "info", "warn", "error"}, []string{"trace"}},
		{LevelInfo, []string{"info", "warn", "error"}, []string{"trace", "debug"}},
		{LevelWarn, []string{"warn", "error"}, []string{"trace", "debug", "info"}},
		{LevelError, []string{"error"}, []string{"trace", "debug", "info", "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.level, FormatText)

			logger.Trace("trace message")
			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			out := buf.String()
			for _, want := range tt.wantLogs {
				if !strings.Contains(out, want+" message") {
					t.Errorf("expected %q message at level %s", want, tt.level)
				}
			}
			for _, skip := range tt.skipLogs {
				if strings.Contains(out, skip+" message") {
					t.Errorf("did not expect %q message at level %s", skip, tt.level)
				}
			}
		})
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelTrace, FormatJSON)
	logger.Trace("[TX]", "seq", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["level"] != LevelTrace {
		t.Errorf("level = %v, want %s", entry["level"], LevelTrace)
	}
	if !logger.TraceEnabled() {
		t.Error("TraceEnabled() should be true at TRACE")
	}
	if New(&buf, LevelDebug, FormatText).TraceEnabled() {
		t.Error("TraceEnabled() should be false at DEBUG")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelInfo, FormatJSON)

	child := base.WithAgent("testing0").WithChannel("testing0").With("pid", 42, 7, "ignored")
	child.Info("bound")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["agent"] != "testing0" {
		t.Errorf("agent = %v", entry["agent"])
	}
	if entry["channel"] != "testing0" {
		t.Errorf("channel = %v", entry["channel"])
	}
	if entry["pid"] != float64(42) {
		t.Errorf("pid = %v", entry["pid"])
	}

	buf.Reset()
	base.Info("parent")
	if strings.Contains(buf.String(), "testing0") {
		t.Error("child attributes leaked into parent logger")
	}
}

func TestOpen_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "fanout.log")

	logger, err := Open(Options{Level: LevelInfo, Format: FormatJSON, File: path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	logger.Info("to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close is a no-op.
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "to file") {
		t.Errorf("log file missing message: %q", content)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"Info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidLevels(t *testing.T) {
	levels := ValidLevels()
	if len(levels) != 5 || levels[0] != LevelTrace {
		t.Errorf("unexpected levels %v", levels)
	}
}
