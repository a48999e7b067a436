package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// RestartableServices are the init scripts the bot may restart.
var RestartableServices = []string{"network", "firewall", "dnsmasq", "uhttpd"}

const statusScript = "uptime; echo '---'; free -m; echo '---'; cat /sys/class/thermal/thermal_zone0/temp 2>/dev/null || echo 0"

type SystemStatus struct {
	Uptime       string
	Load         string
	MemTotalMB   int
	MemUsedMB    int
	TemperatureC float64 // 0 when unknown
}

type Lease struct {
	Expires  string
	MAC      string
	IP       string
	Hostname string
}

// ScriptOutputLimit caps the script output returned to the chat.
const ScriptOutputLimit = 3000

// SystemService reads and controls the router itself
type SystemService struct {
	exec       RemoteExecutor
	scriptsDir string
}

func NewSystemService(exec RemoteExecutor, scriptsDir string) *SystemService {
	return &SystemService{exec: exec, scriptsDir: strings.TrimRight(scriptsDir, "/")}
}

func (s *SystemService) Status(ctx context.Context) (*SystemStatus, error) {
	out, err := bestEffort(ctx, s.exec, statusScript)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return nil, fmt.Errorf("empty status output")
	}
	return ParseStatus(out), nil
}

// ParseStatus parses the output of statusScript.
func ParseStatus(out string) *SystemStatus {
	st := &SystemStatus{}
	parts := strings.Split(out, "---")

	uptimeLine := strings.TrimSpace(parts[0])
	if _, after, ok := strings.Cut(uptimeLine, " up "); ok {
		segs := strings.Split(after, ",")
		st.Uptime = strings.TrimSpace(segs[0])
		// "up 3 days, 4:05" keeps the clock part too
		if len(segs) > 1 && strings.Contains(segs[0], "day") && !strings.Contains(segs[1], "load") && !strings.Contains(segs[1], "user") {
			st.Uptime += ", " + strings.TrimSpace(segs[1])
		}
	}
	if _, after, ok := strings.Cut(uptimeLine, "load average:"); ok {
		st.Load = strings.TrimSpace(after)
	}

	if len(parts) > 1 {
		for _, line := range strings.Split(parts[1], "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 3 && fields[0] == "Mem:" {
				st.MemTotalMB, _ = strconv.Atoi(fields[1])
				st.MemUsedMB, _ = strconv.Atoi(fields[2])
			}
		}
	}

	if len(parts) > 2 {
		if milli, err := strconv.Atoi(strings.TrimSpace(parts[2])); err == nil && milli > 0 {
			st.TemperatureC = float64(milli) / 1000
		}
	}
	return st
}

// Leases reads the dnsmasq lease file.
func (s *SystemService) Leases(ctx context.Context) ([]Lease, error) {
	out, err := output(ctx, s.exec, "cat /tmp/dhcp.leases")
	if err != nil {
		return nil, err
	}
	return ParseLeases(out), nil
}

// ParseLeases parses dnsmasq's "expiry mac ip hostname clientid" lines.
func ParseLeases(out string) []Lease {
	var leases []Lease
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 4 {
			continue
		}
		name := f[3]
		if name == "*" {
			name = ""
		}
		leases = append(leases, Lease{Expires: f[0], MAC: f[1], IP: f[2], Hostname: name})
	}
	return leases
}

func (s *SystemService) RestartService(ctx context.Context, name string) error {
	if !slices.Contains(RestartableServices, name) {
		return fmt.Errorf("service %q cannot be restarted", name)
	}
	_, err := output(ctx, s.exec, fmt.Sprintf("/etc/init.d/%s restart", name))
	return err
}

func (s *SystemService) Reboot(ctx context.Context) error {
	_, err := s.exec.Run(ctx, "reboot")
	return err
}

func (s *SystemService) DropCaches(ctx context.Context) error {
	_, err := output(ctx, s.exec, "sync && echo 3 > /proc/sys/vm/drop_caches")
	return err
}

// Scripts lists the *.sh files in the scripts directory, sorted by path.
func (s *SystemService) Scripts(ctx context.Context) ([]string, error) {
	if s.scriptsDir == "" {
		return nil, nil
	}
	out, err := bestEffort(ctx, s.exec, "ls -1 "+Quote(s.scriptsDir)+"/*.sh 2>/dev/null")
	if err != nil {
		return nil, err
	}
	var scripts []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasSuffix(line, ".sh") && strings.HasPrefix(line, s.scriptsDir+"/") {
			scripts = append(scripts, line)
		}
	}
	slices.Sort(scripts)
	return scripts, nil
}

// RunScript runs a script returned by Scripts. Output is combined and truncated to
// ScriptOutputLimit; a non-zero exit status is reported as a CommandError.
func (s *SystemService) RunScript(ctx context.Context, path string) (string, error) {
	scripts, err := s.Scripts(ctx)
	if err != nil {
		return "", err
	}
	if !slices.Contains(scripts, path) {
		return "", fmt.Errorf("script %q not found in %s", path, s.scriptsDir)
	}
	out, err := output(ctx, s.exec, "sh "+Quote(path)+" 2>&1")
	return TruncateOutput(out, ScriptOutputLimit), err
}

// TruncateOutput cuts s to at most limit runes and marks the cut.
func TruncateOutput(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "\n... (output truncated)"
}
