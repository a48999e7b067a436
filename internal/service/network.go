// internal/service/network.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"
)

// NetTool is a diagnostic command run from the router.
type NetTool string

const (
	ToolPing       NetTool = "ping"
	ToolTraceroute NetTool = "trace"
	ToolNslookup   NetTool = "dns"
	ToolCurl       NetTool = "curl"
)

var NetTools = []NetTool{ToolPing, ToolTraceroute, ToolNslookup, ToolCurl}

const gatewayScript = "ip route | grep default | awk '{print $3}' | head -n 1"

// PublicIPs holds the router's addresses as seen from outside.
type PublicIPs struct {
	V4 string `json:"v4"`
	V6 string `json:"v6"`
}

// NetworkService runs network diagnostics and address discovery on the router
type NetworkService struct {
	exec       RemoteExecutor
	interfaces []string
}

// NewNetworkService creates a NetworkService that inspects the given ubus interfaces
func NewNetworkService(exec RemoteExecutor, interfaces []string) *NetworkService {
	return &NetworkService{exec: exec, interfaces: interfaces}
}

// ToolScript builds the shell command for tool against target.
// target must already be validated as a hostname, IP or URL.
func ToolScript(tool NetTool, target string) (string, error) {
	q := Quote(target)
	switch tool {
	case ToolPing:
		return "ping -c 4 -w 5 " + q, nil
	case ToolTraceroute:
		return fmt.Sprintf("traceroute -I -m 15 -w 2 -q 1 -n %s 2>/dev/null || traceroute -m 15 -w 2 -q 1 -n %s", q, q), nil
	case ToolNslookup:
		return "nslookup " + q, nil
	case ToolCurl:
		return `curl -I -s -w 'Response Code: %{http_code}\nTime: %{time_total}s\n' -o /dev/null ` + q, nil
	}
	return "", fmt.Errorf("unknown tool %q", tool)
}

// Run executes a diagnostic tool and returns its output regardless of exit status.
func (s *NetworkService) Run(ctx context.Context, tool NetTool, target string) (string, error) {
	script, err := ToolScript(tool, target)
	if err != nil {
		return "", err
	}
	return bestEffort(ctx, s.exec, script)
}

// QuickCheck pings the default gateway and a public resolver, then resolves a well-known name.
func (s *NetworkService) QuickCheck(ctx context.Context) (string, error) {
	gw, err := bestEffort(ctx, s.exec, gatewayScript)
	if err != nil {
		return "", err
	}
	gw = strings.TrimSpace(gw)

	var b strings.Builder
	if gw != "" {
		out, err := s.Run(ctx, ToolPing, gw)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Gateway %s:\n%s\n", gw, lastLines(out, 2))
	} else {
		b.WriteString("Gateway: not found\n")
	}

	out, err := s.Run(ctx, ToolPing, "8.8.8.8")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "8.8.8.8:\n%s\n", lastLines(out, 2))

	out, err = s.Run(ctx, ToolNslookup, "google.com")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "DNS google.com:\n%s", strings.TrimSpace(out))
	return b.String(), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type ubusStatus struct {
	IPv4 []struct {
		Address string `json:"address"`
	} `json:"ipv4-address"`
	IPv6 []struct {
		Address string `json:"address"`
	} `json:"ipv6-address"`
	Prefix []struct {
		LocalAddress struct {
			Address string `json:"address"`
		} `json:"local-address"`
	} `json:"ipv6-prefix-assignment"`
}

// ParseInterfaceStatus extracts the public v4 and v6 addresses from `ubus call network.interface.X status`.
func ParseInterfaceStatus(out string) PublicIPs {
	var st ubusStatus
	var ips PublicIPs
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		return ips
	}
	if len(st.IPv4) > 0 {
		ips.V4 = st.IPv4[0].Address
	}
	for _, a := range st.IPv6 {
		if !strings.HasPrefix(strings.ToLower(a.Address), "fe80") {
			ips.V6 = a.Address
			break
		}
	}
	if ips.V6 == "" {
		for _, p := range st.Prefix {
			if addr := p.LocalAddress.Address; addr != "" && !strings.HasPrefix(strings.ToLower(addr), "fe80") {
				ips.V6 = addr
				break
			}
		}
	}
	return ips
}

// PublicIPs queries every configured interface concurrently and falls back to icanhazip.com
// for an address family no interface reported. A failed probe counts as absent; an error is
// returned only when every probe failed and the fallback found nothing either.
func (s *NetworkService) PublicIPs(ctx context.Context) (PublicIPs, error) {
	found := make([]PublicIPs, len(s.interfaces))
	errs := make([]error, len(s.interfaces))
	var g errgroup.Group
	for i, iface := range s.interfaces {
		i, iface := i, iface
		g.Go(func() error {
			out, err := bestEffort(ctx, s.exec, "ubus call network.interface."+iface+" status 2>/dev/null")
			if err != nil {
				slog.Warn("Interface probe failed", "interface", iface, "error", err)
				errs[i] = err
				return nil
			}
			found[i] = ParseInterfaceStatus(out)
			return nil
		})
	}
	_ = g.Wait()

	var ips PublicIPs
	for _, f := range found {
		if ips.V4 == "" && f.V4 != "" {
			ips.V4 = f.V4
		}
		if ips.V6 == "" && f.V6 != "" {
			ips.V6 = f.V6
		}
	}

	if ips.V4 == "" {
		ips.V4 = s.lookupExternal(ctx, "-4")
	}
	if ips.V6 == "" {
		ips.V6 = s.lookupExternal(ctx, "-6")
	}

	if ips.V4 == "" && ips.V6 == "" && len(errs) > 0 {
		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
			}
		}
		if failed == len(errs) {
			return PublicIPs{}, errs[0]
		}
	}
	return ips, nil
}

func (s *NetworkService) lookupExternal(ctx context.Context, family string) string {
	out, err := bestEffort(ctx, s.exec, "curl "+family+" -s --connect-timeout 5 --max-time 10 icanhazip.com")
	if err != nil {
		return ""
	}
	addr := strings.TrimSpace(out)
	if net.ParseIP(addr) == nil {
		return ""
	}
	return addr
}
