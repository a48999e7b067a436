package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/shell"
)

const sampleStatus = ` 14:02:11 up 3 days,  4:05,  load average: 0.08, 0.03, 0.01
---
              total        used        free      shared  buff/cache   available
Mem:            491          87         312           1          91         375
Swap:             0           0           0
---
52300
`

func TestParseStatus(t *testing.T) {
	st := ParseStatus(sampleStatus)
	if st.Uptime != "3 days, 4:05" {
		t.Errorf("Uptime = %q", st.Uptime)
	}
	if st.Load != "0.08, 0.03, 0.01" {
		t.Errorf("Load = %q", st.Load)
	}
	if st.MemTotalMB != 491 || st.MemUsedMB != 87 {
		t.Errorf("Mem = %d/%d", st.MemUsedMB, st.MemTotalMB)
	}
	if st.TemperatureC != 52.3 {
		t.Errorf("TemperatureC = %v", st.TemperatureC)
	}
}

func TestParseStatus_ShortUptimeNoSensor(t *testing.T) {
	st := ParseStatus(" 10:00:00 up 12 min,  load average: 1.00, 0.50, 0.20\n---\nMem: 100 50 50\n---\n0\n")
	if st.Uptime != "12 min" {
		t.Errorf("Uptime = %q", st.Uptime)
	}
	if st.TemperatureC != 0 {
		t.Errorf("TemperatureC = %v, want 0", st.TemperatureC)
	}
}

func TestSystemService_StatusEmpty(t *testing.T) {
	svc := NewSystemService(&mockExecutor{}, "")
	if _, err := svc.Status(context.Background()); err == nil {
		t.Error("expected error for empty output")
	}
}

func TestParseLeases(t *testing.T) {
	out := "1700000000 aa:bb:cc:dd:ee:ff 192.168.1.20 laptop 01:aa:bb\n1700000100 11:22:33:44:55:66 192.168.1.21 * *\nbroken line\n"
	leases := ParseLeases(out)
	if len(leases) != 2 {
		t.Fatalf("expected 2 leases, got %d", len(leases))
	}
	if leases[0].Hostname != "laptop" || leases[0].IP != "192.168.1.20" {
		t.Errorf("lease 0 = %+v", leases[0])
	}
	if leases[1].Hostname != "" {
		t.Errorf("anonymous lease hostname = %q", leases[1].Hostname)
	}
}

func TestSystemService_RestartService(t *testing.T) {
	mock := &mockExecutor{}
	svc := NewSystemService(mock, "")

	if err := svc.RestartService(context.Background(), "dnsmasq"); err != nil {
		t.Fatalf("RestartService: %v", err)
	}
	if !mock.called("/etc/init.d/dnsmasq restart") {
		t.Errorf("calls = %v", mock.calls)
	}

	if err := svc.RestartService(context.Background(), "dropbear; reboot"); err == nil {
		t.Error("expected error for unlisted service")
	}
	if len(mock.calls) != 1 {
		t.Errorf("unlisted service must not run, calls = %v", mock.calls)
	}
}

func TestSystemService_DropCachesFailure(t *testing.T) {
	mock := &mockExecutor{responses: map[string]*shell.Result{
		"drop_caches": {Output: "permission denied", ExitCode: 1},
	}}
	err := NewSystemService(mock, "").DropCaches(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
}

func TestSystemService_RebootTransportError(t *testing.T) {
	mock := &mockExecutor{err: errors.New("connection refused")}
	if err := NewSystemService(mock, "").Reboot(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestSystemService_Scripts(t *testing.T) {
	mock := &mockExecutor{responses: map[string]*shell.Result{
		"ls -1": {Output: "/root/smart/b.sh\n/root/smart/a.sh\n/etc/other.sh\n"},
	}}
	svc := NewSystemService(mock, "/root/smart/")

	scripts, err := svc.Scripts(context.Background())
	if err != nil {
		t.Fatalf("Scripts: %v", err)
	}
	if len(scripts) != 2 || scripts[0] != "/root/smart/a.sh" || scripts[1] != "/root/smart/b.sh" {
		t.Errorf("scripts = %v", scripts)
	}
	if !mock.called("ls -1 '/root/smart'/*.sh") {
		t.Errorf("calls = %v", mock.calls)
	}
}

func TestSystemService_ScriptsDisabled(t *testing.T) {
	mock := &mockExecutor{}
	scripts, err := NewSystemService(mock, "").Scripts(context.Background())
	if err != nil || scripts != nil || len(mock.calls) != 0 {
		t.Errorf("scripts = %v, err = %v, calls = %v", scripts, err, mock.calls)
	}
}

func TestSystemService_RunScript(t *testing.T) {
	long := strings.Repeat("x", ScriptOutputLimit+10)
	tests := []struct {
		name     string
		path     string
		run      *shell.Result
		wantRun  bool
		wantErr  bool
		wantTrim bool
	}{
		{"ok", "/root/smart/a.sh", &shell.Result{Output: "updated\n"}, true, false, false},
		{"long output", "/root/smart/a.sh", &shell.Result{Output: long}, true, false, true},
		{"exit status", "/root/smart/a.sh", &shell.Result{Output: "boom", ExitCode: 3}, true, true, false},
		{"not listed", "/tmp/evil.sh", &shell.Result{}, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockExecutor{responses: map[string]*shell.Result{
				"ls -1":                 {Output: "/root/smart/a.sh\n"},
				"sh '/root/smart/a.sh'": tt.run,
				"sh '/tmp/evil.sh'":     tt.run,
			}}
			out, err := NewSystemService(mock, "/root/smart").RunScript(context.Background(), tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if mock.called("sh '"+tt.path+"' 2>&1") != tt.wantRun {
				t.Errorf("calls = %v", mock.calls)
			}
			if tt.wantTrim && !strings.HasSuffix(out, "(output truncated)") {
				t.Errorf("output not truncated: %d bytes", len(out))
			}
		})
	}
}
