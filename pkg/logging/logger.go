package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig defines the configuration for structured logging.
type LogConfig struct {
	Level  string // "debug", "info", "warn" or "error"
	Format string // "json" or "text"
	Output io.Writer
}

// InitLogger builds a slog logger from config and installs it as the default.
// Unknown levels fall back to INFO and unknown formats to text.
func InitLogger(config LogConfig) *slog.Logger {
	level, levelOK := ParseLevel(config.Level)
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	formatOK := true
	switch strings.ToLower(strings.TrimSpace(config.Format)) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
		formatOK = false
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	if !levelOK {
		logger.Warn("invalid log level specified, defaulting to INFO", "specified_level", config.Level)
	}
	if !formatOK {
		logger.Warn("invalid log format specified, defaulting to text", "specified_format", config.Format)
	}
	logger.Debug("logger initialized", "level", level.String(), "format", config.Format)
	return logger
}

// ParseLevel maps a level name onto slog levels. Empty means INFO.
func ParseLevel(v string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO", "":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewComponentLogger creates a component-specific logger with context.
// It adds the component name to all log messages for better traceability.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
