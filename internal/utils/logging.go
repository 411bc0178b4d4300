package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
)

// LogLevel defines log level types
type LogLevel string

// Log level constants - using values from config package
const (
	LogLevelDebug LogLevel = LogLevel(config.LogLevelDebug)
	LogLevelInfo  LogLevel = LogLevel(config.LogLevelInfo)
	LogLevelWarn  LogLevel = LogLevel(config.LogLevelWarn)
	LogLevelError LogLevel = LogLevel(config.LogLevelError)
)

// LogFormat defines log format types
type LogFormat string

// Log format constants - using values from config package
const (
	LogFormatText LogFormat = LogFormat(config.LogFormatText)
	LogFormatJSON LogFormat = LogFormat(config.LogFormatJSON)
)

// GetLogLevel converts a string log level to slog.Level
func GetLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case string(LogLevelDebug):
		return slog.LevelDebug
	case string(LogLevelWarn), "warning":
		return slog.LevelWarn
	case string(LogLevelError):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateLogLevel ensures the provided level is valid, returning a default if not
func ValidateLogLevel(level string) string {
	switch level {
	case string(LogLevelDebug), string(LogLevelInfo), string(LogLevelWarn), string(LogLevelError):
		return level
	default:
		return string(LogLevelInfo)
	}
}

// ValidateLogFormat ensures the provided format is valid, returning a default if not
func ValidateLogFormat(format string) string {
	switch format {
	case string(LogFormatText), string(LogFormatJSON):
		return format
	default:
		return string(LogFormatText)
	}
}

// NewLogger builds a slog logger writing to w. Debug level also records the
// source location, which is what you want when chasing a misbehaving light.
func NewLogger(w io.Writer, level string, format string) *slog.Logger {
	logLevel := GetLogLevel(ValidateLogLevel(level))
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	if ValidateLogFormat(format) == string(LogFormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetupLogger creates a logger on stderr with the given level and format
func SetupLogger(level string, format string) *slog.Logger {
	return NewLogger(os.Stderr, level, format)
}

// SetupErrorLogger creates a simple text logger for reporting errors during startup.
func SetupErrorLogger() *slog.Logger {
	return NewLogger(os.Stderr, config.LogLevelError, config.LogFormatText)
}

// SetAsDefaultLogger sets a logger as the default logger
func SetAsDefaultLogger(logger *slog.Logger) {
	slog.SetDefault(logger)
}
