package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/shell"
)

func TestLogService_Router(t *testing.T) {
	mock := &mockExecutor{responses: map[string]*shell.Result{"logread": {Output: "line1\nline2"}}}
	svc := NewLogService(mock)

	out, err := svc.Router(context.Background(), 20)
	if err != nil {
		t.Fatalf("Router error: %v", err)
	}
	if out != "line1\nline2" {
		t.Errorf("out = %q", out)
	}
	if len(mock.calls) != 1 || mock.calls[0] != "logread | tail -n 20" {
		t.Errorf("unexpected calls: %v", mock.calls)
	}
}

func TestLogService_RouterDefaultLines(t *testing.T) {
	mock := &mockExecutor{}
	_, _ = NewLogService(mock).Router(context.Background(), 0)
	if !mock.called("tail -n 50") {
		t.Errorf("calls = %v", mock.calls)
	}
}

func TestLogService_Error(t *testing.T) {
	svc := NewLogService(&mockExecutor{err: errors.New("exec failed")})
	if _, err := svc.Router(context.Background(), 20); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestLogService_Clash(t *testing.T) {
	mock := &mockExecutor{responses: map[string]*shell.Result{
		"openclash.log": {Output: "== openclash.log ==\nstarted", ExitCode: 1},
	}}
	out, err := NewLogService(mock).Clash(context.Background(), 30)
	if err != nil {
		t.Fatalf("Clash: %v", err)
	}
	if !strings.Contains(out, "started") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(mock.calls[0], "tail -n 30 /tmp/openclash.log") {
		t.Errorf("script = %s", mock.calls[0])
	}
}
