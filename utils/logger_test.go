package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(LoggerOptions{Writer: &buf, Level: slog.LevelWarn, NoColor: true})

	logger.Info("[test] hidden %d", 1)
	logger.Debug("[test] hidden %d", 2)
	logger.Warn("[test] shown %d", 3)
	logger.Error("[test] shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below the level were written:\n%s", out)
	}
	if !strings.Contains(out, "[test] shown 3") || !strings.Contains(out, "[test] shown 4") {
		t.Errorf("missing records:\n%s", out)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close without fluent: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
