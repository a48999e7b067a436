package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// RotateIfNeeded moves path to path+".1" when it grows beyond maxSize.
// Only one previous generation is kept. Returns true if the file was rotated.
func RotateIfNeeded(path string, maxSize int64) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= maxSize {
		return false
	}
	if err := os.Rename(path, path+".1"); err != nil {
		slog.Warn("Failed to rotate log file", "path", path, "error", err)
		return false
	}
	return true
}

// rotate reopens the log file after it was moved away.
func (l *Logger) rotate(maxSize int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !RotateIfNeeded(l.path, maxSize) {
		return
	}
	if l.file != nil {
		l.file.Close()
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.file = nil
		return
	}
	l.file = file
}

// StartRotation checks the log file size every interval until ctx is done.
func (l *Logger) StartRotation(ctx context.Context, maxSize int64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.rotate(maxSize)
			}
		}
	}()
}
