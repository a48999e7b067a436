// Package logging sets up the process-wide slog logger and log file rotation
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger owns the log file and the dynamic level
type Logger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	levelVar *slog.LevelVar
}

// NewSlogLogger creates a slog.Logger writing to stdout and logPath.
// format is "text" (default) or "json". Level starts at INFO; call SetLevel once config is loaded.
// The standard log package is redirected to the same destinations so tgbotapi output lands in the file too.
func NewSlogLogger(logPath, format string) (*slog.Logger, *Logger, error) {
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}

	l := &Logger{path: logPath, file: file, levelVar: new(slog.LevelVar)}
	l.levelVar.Set(slog.LevelInfo)

	out := io.MultiWriter(os.Stdout, l)

	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime)

	opts := &slog.HandlerOptions{Level: l.levelVar, AddSource: true}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), l, nil
}

// Write implements io.Writer against the current file, which may be swapped by rotation.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// SetLevel changes the log level dynamically.
// Valid levels: debug, info, warn, error (case-insensitive). Anything else falls back to info.
func (l *Logger) SetLevel(level string) {
	parsed, ok := parseLevel(level)
	if !ok {
		slog.Warn("Unknown log_level, using info", "value", level)
	}
	l.levelVar.Set(parsed)
}

// Level returns the current level
func (l *Logger) Level() slog.Level {
	return l.levelVar.Level()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
