package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the JSON logger for the process.
// With a log directory configured, output goes to stdout and a rotated file.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, stdout io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Logging.Level),
	}

	w := stdout
	if cfg.Logging.Dir != "" {
		if err := os.MkdirAll(cfg.Logging.Dir, 0755); err != nil {
			slog.Warn("Log directory unavailable, logging to stdout only",
				slog.String("dir", cfg.Logging.Dir), slog.Any("error", err))
		} else {
			w = io.MultiWriter(stdout, rotatingFile(cfg))
		}
	}

	logger := slog.New(slog.NewJSONHandler(w, opts))
	if cfg.App.Name != "" {
		logger = logger.With(slog.String("service", cfg.App.Name))
	}
	return logger
}

func rotatingFile(cfg *Config) *lumberjack.Logger {
	name := cfg.Logging.File
	if name == "" {
		name = "order-engine.log"
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logging.Dir, name),
		MaxSize:    cfg.Logging.MaxSizeMB, // 0 means lumberjack's 100MB
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
