// Package logging configures the process-wide structured loggers.
// It provides a JSON logger for machine consumption and a human-readable
// text logger, plus rotating per-service file loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
)

// LevelFatal extends slog's levels for unrecoverable startup failures.
const LevelFatal = slog.Level(12)

// Init initializes the logging system. Structured JSON goes to stdout,
// human-readable text to stderr. The structured logger becomes the slog
// default.
func Init(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	structuredLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	humanReadableLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(structuredLogger)
}

// SetOutput redirects both loggers, for tests.
func SetOutput(structured, humanReadable io.Writer) {
	structuredLogger = slog.New(slog.NewJSONHandler(structured, nil))
	humanReadableLogger = slog.New(slog.NewTextHandler(humanReadable, nil))
	slog.SetDefault(structuredLogger)
}

// Structured returns the globally configured JSON logger, or a default
// stdout logger if Init has not run yet.
func Structured() *slog.Logger {
	if structuredLogger == nil {
		Init(false)
	}
	return structuredLogger
}

// ForService returns a child of the structured logger with the service
// attribute set.
func ForService(serviceName string) *slog.Logger {
	return Structured().With("service", serviceName)
}

// NewFileLogger creates a logger writing rotated JSON logs to filePath with
// the service attribute set. It returns the logger and a close function for
// the underlying writer.
func NewFileLogger(filePath, serviceName string, level slog.Leveler) (*slog.Logger, func() error, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}

	writer := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", serviceName)
	return logger, writer.Close, nil
}

// Fatal logs at the fatal level and exits.
func Fatal(msg string, args ...any) {
	Structured().Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}
