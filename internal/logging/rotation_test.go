package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotateIfNeeded(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	if err := os.WriteFile(logPath, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}

	// 100 < 200
	if RotateIfNeeded(logPath, 200) {
		t.Error("should not rotate below limit")
	}

	// 100 > 50
	if !RotateIfNeeded(logPath, 50) {
		t.Fatal("expected rotation")
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("original file should be moved away")
	}
	info, err := os.Stat(logPath + ".1")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if info.Size() != 100 {
		t.Errorf("backup size = %d, want 100", info.Size())
	}
}

func TestRotateIfNeeded_FileNotExist(t *testing.T) {
	if RotateIfNeeded("/nonexistent/path/file.log", 100) {
		t.Error("missing file must not rotate")
	}
}

func TestRotateIfNeeded_ExactSize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}

	if RotateIfNeeded(logPath, 100) {
		t.Error("should not rotate at exact size")
	}
}

func TestLogger_RotateReopens(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	_, logger, err := NewSlogLogger(logPath, "text")
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	logger.Write(make([]byte, 64))
	logger.rotate(10)

	if _, err := logger.Write([]byte("after\n")); err != nil {
		t.Fatalf("Write after rotate: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reopened file missing: %v", err)
	}
	if string(data) != "after\n" {
		t.Errorf("new file content = %q", data)
	}
}
