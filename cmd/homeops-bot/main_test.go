package main

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/paths"
)

func testPaths(t *testing.T) paths.Paths {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	return paths.Paths{
		ConfigPath:      filepath.Join(dir, "config.json"),
		EnvFile:         filepath.Join(dir, ".env"),
		DataDir:         data,
		PermissionsPath: filepath.Join(data, "permissions.json"),
		IPHistoryPath:   filepath.Join(data, "ip_history.json"),
		LogPath:         filepath.Join(dir, "homeops-bot.log"),
	}
}

func restoreLogging(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	prevOut := log.Writer()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(prevOut)
	})
}

func TestRun_InvalidConfigReturnsErrorAndFlushesLog(t *testing.T) {
	restoreLogging(t)
	t.Setenv("TG_BOT_TOKEN", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("ADMIN_ID", "")
	p := testPaths(t)
	if err := os.WriteFile(p.ConfigPath, []byte("{\n  // empty\n}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := run(p, false)
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("err = %v", err)
	}

	data, readErr := os.ReadFile(p.LogPath)
	if readErr != nil {
		t.Fatalf("read log: %v", readErr)
	}
	if !strings.Contains(string(data), "Invalid config") {
		t.Errorf("log = %q", data)
	}
}

func TestRun_BrokenConfigFile(t *testing.T) {
	restoreLogging(t)
	p := testPaths(t)
	if err := os.WriteFile(p.ConfigPath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := run(p, false)
	if err == nil || !strings.HasPrefix(err.Error(), "load config") {
		t.Fatalf("err = %v", err)
	}
}
