package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
// Anything other than "json" falls back to the human-readable text handler.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: true}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
