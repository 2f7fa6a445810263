// Package observability provides structured logging for livepackager.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/masq"
)

// LoggingConfig configures a logger built by NewLogger.
type LoggingConfig struct {
	Level      string // trace, debug, info, warn, error
	Format     string // json, text
	AddSource  bool
	TimeFormat string
}

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const loggerKey contextKey = "logger"

// GlobalLogLevel is the shared log level that can be changed at runtime.
// Use SetLogLevel and GetLogLevel to modify/read this value.
var GlobalLogLevel = &slog.LevelVar{}

// NewLogger creates a new slog.Logger based on the provided configuration.
// The logger supports JSON and text formats with configurable log levels.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// keyMaterialRedactor creates a masq redactor for the struct fields that carry
// raw key/IV bytes (model.EncryptionConfig, model.DecryptConfig). Segment
// payloads never flow through slog, only these configuration structs do, so
// redacting by field name is sufficient.
func keyMaterialRedactor() func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(
		masq.WithFieldName("Key"),
		masq.WithFieldName("key"),
		masq.WithFieldName("IV"),
		masq.WithFieldName("iv"),
		masq.WithFieldName("KeyID"),
		masq.WithFieldName("key_id"),
	)
}

// NewLoggerWithWriter creates a new slog.Logger that writes to the provided writer.
// This is useful for testing or custom output destinations.
// The logger uses GlobalLogLevel for dynamic log level changes at runtime.
// Key/IV fields on logged structs are redacted automatically.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	GlobalLogLevel.Set(level)

	redactor := keyMaterialRedactor()

	opts := &slog.HandlerOptions{
		Level:     GlobalLogLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a = redactor(groups, a)
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return slog.LevelDebug - 4 // slog doesn't have trace, use lower than debug
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel changes the global log level at runtime.
func SetLogLevel(level string) {
	GlobalLogLevel.Set(parseLevel(level))
}

// GetLogLevel returns the current log level as a string.
func GetLogLevel() string {
	level := GlobalLogLevel.Level()
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level == slog.LevelDebug:
		return "debug"
	case level == slog.LevelInfo:
		return "info"
	case level == slog.LevelWarn:
		return "warn"
	case level >= slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// WithComponent adds a component name to the logger for identifying the source.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithPackagerID adds the packager correlation id to the logger.
func WithPackagerID(logger *slog.Logger, packagerID string) *slog.Logger {
	return logger.With(slog.String("packager_id", packagerID))
}

// WithError adds an error to the logger attributes.
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}

// LoggerFromContext extracts a logger from the context.
// If no logger is found, returns the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// SetDefault sets the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// TimedOperation logs the start and end of an operation with duration.
// Returns a function that should be deferred to log the completion.
func TimedOperation(ctx context.Context, logger *slog.Logger, operation string) func() {
	start := time.Now()
	logger.InfoContext(ctx, "operation started", slog.String("operation", operation))

	return func() {
		duration := time.Since(start)
		logger.InfoContext(ctx, "operation completed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
		)
	}
}
