package infra

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_StdoutOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Dir = ""
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("order_id", "o-1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["order_id"] != "o-1" {
		t.Errorf("unexpected record: %v", rec)
	}
	if rec["service"] != cfg.App.Name {
		t.Errorf("expected service=%q, got %v", cfg.App.Name, rec["service"])
	}
}

func TestNewLogger_RotatingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Dir = filepath.Join(t.TempDir(), "logs")
	cfg.Logging.File = "test.log"

	var buf bytes.Buffer
	newLogger(cfg, &buf).Info("to both")

	data, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, "test.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Errorf("expected the line in file and stdout, file=%q stdout=%q", data, buf.String())
	}
}
