package util

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type loggerContextKey struct{}

// ParseLevel maps debug, info, warn and error onto slog levels.
// Unknown input falls back to info.
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

// InitLogger configures the global slog logger with JSON output.
// When logsDir is set, records are also written to <logsDir>/<service>.log
// with size based rotation. The returned cleanup closes the log file.
func InitLogger(level, service, logsDir string) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	var cleanup func()
	logsDir = strings.TrimSpace(logsDir)
	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err == nil {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(logsDir, service+".log"),
				MaxSize:    100,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			}
			out = io.MultiWriter(os.Stdout, file)
			cleanup = func() { _ = file.Close() }
		}
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger, cleanup
}

// Fatal logs at error level and exits the process.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// ContextWithLogger stores a request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger or the default one.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}
