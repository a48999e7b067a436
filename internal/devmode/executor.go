// Package devmode provides development mode utilities for local testing
package devmode

import (
	"context"
	"log/slog"
	"strings"

	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/shell"
)

// safeCommands may run on the development machine unchanged
var safeCommands = map[string]bool{
	"ping":       true,
	"traceroute": true,
	"nslookup":   true,
	"curl":       true,
}

// mutating commands are acknowledged but never executed
var mutatingPrefixes = []string{
	"uci set", "uci delete", "uci rename", "uci commit",
	"/etc/init.d/", "reboot", "sync", "sh ",
}

const mockUptime = ` 12:00:00 up 1 day,  2:03,  load average: 0.10, 0.05, 0.01
---
              total        used        free      shared  buff/cache   available
Mem:            256          96         120           1          40         150
---
48500
`

const mockFirewall = `firewall.@zone[0]=zone
firewall.@zone[0].name='lan'
firewall.@zone[1]=zone
firewall.@zone[1].name='wan'
firewall.@redirect[0]=redirect
firewall.@redirect[0].name='Legacy NAS'
firewall.@redirect[0].src_dport='5000'
firewall.@redirect[0].dest_ip='192.168.1.10'
firewall.@redirect[0].proto='tcp'
firewall.homeops_web=redirect
firewall.homeops_web.name='web'
firewall.homeops_web.src_dport='8080'
firewall.homeops_web.dest_ip='192.168.1.50'
firewall.homeops_web.dest_port='80'
firewall.homeops_web.proto='tcp'
`

const mockLeases = `1893456000 aa:bb:cc:dd:ee:01 192.168.1.20 laptop 01:aa:bb:cc:dd:ee:01
1893456000 aa:bb:cc:dd:ee:02 192.168.1.21 * *
`

const mockWAN = `{"up": true, "ipv4-address": [{"address": "198.51.100.23", "mask": 24}]}`

// Executor implements service.RemoteExecutor without touching a real router.
// Read-only router scripts return canned output, network tools run locally,
// mutating scripts are logged and acknowledged, anything else fails with exit code 1.
type Executor struct {
	real service.RemoteExecutor
}

var _ service.RemoteExecutor = (*Executor)(nil)

// NewExecutor creates a dev mode executor that runs safe tools through the local shell
func NewExecutor() *Executor {
	return &Executor{real: shell.Local{}}
}

// NewExecutorWithReal creates a dev mode executor with a custom real executor
// (useful for testing)
func NewExecutorWithReal(real service.RemoteExecutor) *Executor {
	return &Executor{real: real}
}

func (e *Executor) Run(ctx context.Context, script string) (*shell.Result, error) {
	script = strings.TrimSpace(script)
	first, _, _ := strings.Cut(script, " ")

	if safeCommands[first] && !strings.ContainsAny(script, ";|&`$><") {
		slog.Info("DEV: executing safe command", "script", script)
		return e.real.Run(ctx, script)
	}

	if out, ok := mockOutput(script); ok {
		slog.Info("DEV: mock command", "script", script)
		return &shell.Result{Output: out}, nil
	}

	for _, p := range mutatingPrefixes {
		if strings.HasPrefix(script, p) {
			slog.Info("DEV: mutating command skipped", "script", script)
			return &shell.Result{Output: "[DEV MODE] " + first + ": ok"}, nil
		}
	}

	slog.Warn("DEV: unknown command blocked", "script", script)
	return &shell.Result{
		Output:   "dev mode: unknown command not allowed",
		ExitCode: 1,
	}, nil
}

func mockOutput(script string) (string, bool) {
	switch {
	case script == "uci show firewall":
		return mockFirewall, true
	case strings.HasPrefix(script, "uptime"):
		return mockUptime, true
	case script == "cat /tmp/dhcp.leases":
		return mockLeases, true
	case strings.HasPrefix(script, "logread"):
		return "[DEV MODE] Mon Jan  1 12:00:00 2024 daemon.info dnsmasq[1]: started\n", true
	case strings.HasPrefix(script, "ubus call network.interface.wan status"):
		return mockWAN, true
	case strings.HasPrefix(script, "ubus call network.interface."):
		return "", true
	case strings.HasPrefix(script, "ip route"):
		return "127.0.0.1\n", true
	case strings.HasPrefix(script, "ls -1 '") && strings.HasSuffix(script, "'/*.sh 2>/dev/null"):
		dir := strings.TrimSuffix(strings.TrimPrefix(script, "ls -1 '"), "'/*.sh 2>/dev/null")
		return dir + "/restart_wifi.sh\n" + dir + "/update_geoip.sh\n", true
	case strings.HasPrefix(script, "echo '== openclash.log"):
		return "== openclash.log ==\n[DEV MODE] OpenClash started\n== wan ==\n\"up\": true,\n", true
	}
	return "", false
}
