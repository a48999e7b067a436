package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSlogLogger_CreatesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	_, logger, err := NewSlogLogger(logPath, "text")
	if err != nil {
		t.Fatalf("NewSlogLogger() error: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestNewSlogLogger_InvalidPath(t *testing.T) {
	_, _, err := NewSlogLogger("/nonexistent/dir/test.log", "text")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestNewSlogLogger_JSONFormat(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	slogger, logger, err := NewSlogLogger(logPath, "json")
	if err != nil {
		t.Fatalf("NewSlogLogger() error: %v", err)
	}
	slogger.Info("hello", "key", "value")
	logger.Close()

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("expected JSON record, got %q", data)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	_, logger, err := NewSlogLogger(filepath.Join(t.TempDir(), "test.log"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			logger.SetLevel(tt.in)
			if got := logger.Level(); got != tt.want {
				t.Errorf("SetLevel(%q) level = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	_, logger, _ := NewSlogLogger(filepath.Join(t.TempDir(), "test.log"), "text")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}
