package utils

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
)

// Logger provides leveled, printf-style logging throughout the application.
// Records go to a tint handler and, when configured, are mirrored to Fluent Bit.
type Logger struct {
	slog   *slog.Logger
	level  slog.Level
	fluent *fluent.Fluent
}

// LoggerOptions configures NewLoggerWithOptions.
type LoggerOptions struct {
	Writer  io.Writer
	Level   slog.Level
	NoColor bool
	// Fluent, when non-nil, receives a copy of every record at or above Level.
	Fluent *fluent.Fluent
}

// NewLogger creates a Logger writing colored text to stdout at info level.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LoggerOptions{Level: slog.LevelInfo})
}

// NewLoggerWithOptions creates a Logger from explicit options.
func NewLoggerWithOptions(opts LoggerOptions) *Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	handler := tint.NewHandler(opts.Writer, &tint.Options{
		Level:      opts.Level,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    opts.NoColor,
	})
	return &Logger{
		slog:   slog.New(handler),
		level:  opts.Level,
		fluent: opts.Fluent,
	}
}

// NewFluentClient connects the Fluent Bit forwarder used to mirror log records.
func NewFluentClient(host string, port int, tagPrefix string) (*fluent.Fluent, error) {
	client, err := fluent.New(fluent.Config{
		FluentHost: host,
		FluentPort: port,
		TagPrefix:  tagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fluent logger: %w", err)
	}
	return client, nil
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Close flushes and closes the fluent forwarder, if any.
func (l *Logger) Close() error {
	if l.fluent == nil {
		return nil
	}
	return l.fluent.Close()
}

func (l *Logger) log(level slog.Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.slog.Log(context.Background(), level, msg)

	if l.fluent != nil {
		tag := strings.ToLower(level.String())
		_ = l.fluent.Post(tag, map[string]string{
			"level":     tag,
			"message":   msg,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}
