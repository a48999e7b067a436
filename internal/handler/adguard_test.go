package handler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/adguard"
)

func TestAdGuard_MainAndToggle(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgMain)
	text := env.sender.last(t).Text
	if !strings.Contains(text, "Protection: on") || !strings.Contains(text, "blocked: 50 \\(25\\.0%\\)") {
		t.Errorf("main = %q", text)
	}

	env.press(testAdmin, tokenAdgToggle)
	if env.adguard.status.ProtectionEnabled {
		t.Error("protection should be paused")
	}
	if !strings.Contains(env.sender.last(t).Text, "Protection: off") {
		t.Errorf("after toggle = %q", env.sender.last(t).Text)
	}
}

func TestAdGuard_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.deps.AdGuard = nil

	env.press(testAdmin, tokenAdgMain)

	if !strings.Contains(env.sender.last(t).Text, "not configured") {
		t.Errorf("text = %q", env.sender.last(t).Text)
	}
}

func TestAdGuard_FeatureAndRetention(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgFeature+adguard.Parental)
	if !env.adguard.features[adguard.Parental] {
		t.Error("parental should be enabled")
	}

	env.press(testAdmin, tokenAdgCycle+adguard.QueryLog)
	env.press(testAdmin, tokenAdgCycle+"bogus")
	if !reflect.DeepEqual(env.adguard.cycled, []string{adguard.QueryLog}) {
		t.Errorf("cycled = %v", env.adguard.cycled)
	}
}

func TestAdGuard_UpstreamWizard(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgDNSSet+"upstream")
	env.text(testAdmin, "https://dns.quad9.net/dns-query\n\n1.1.1.1\n")

	if len(env.adguard.dnsSets) != 1 {
		t.Fatalf("SetDNS calls = %d", len(env.adguard.dnsSets))
	}
	want := map[string]any{"upstream_dns": []string{"https://dns.quad9.net/dns-query", "1.1.1.1"}}
	if !reflect.DeepEqual(env.adguard.dnsSets[0], want) {
		t.Errorf("SetDNS = %v, want %v", env.adguard.dnsSets[0], want)
	}
}

func TestAdGuard_CacheWizardScalesMegabytes(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgDNSSet+"cache")
	env.text(testAdmin, "abc")
	if len(env.adguard.dnsSets) != 0 {
		t.Fatal("invalid size applied")
	}
	env.text(testAdmin, "4")

	if len(env.adguard.dnsSets) != 1 || env.adguard.dnsSets[0]["cache_size"] != 4*1024*1024 {
		t.Errorf("SetDNS = %v", env.adguard.dnsSets)
	}
}

func TestAdGuard_DNSToggles(t *testing.T) {
	env := newTestEnv(t)
	env.adguard.dns = adguard.DNSInfo{DNSSEC: false, DisableIPv6: false, BlockingMode: "default"}

	env.press(testAdmin, tokenAdgDNSToggle+"dnssec")
	env.press(testAdmin, tokenAdgDNSToggle+"ipv6")
	env.press(testAdmin, tokenAdgDNSBlock)

	want := []map[string]any{
		{"dnssec_enabled": true},
		{"disable_ipv6": true},
		{"blocking_mode": "null_ip"},
	}
	if !reflect.DeepEqual(env.adguard.dnsSets, want) {
		t.Errorf("SetDNS = %v", env.adguard.dnsSets)
	}
}

func TestAdGuard_RuleToggleWizard(t *testing.T) {
	env := newTestEnv(t)
	env.adguard.filtering.UserRules = []string{"||ads.example.com^"}

	env.press(testAdmin, tokenAdgRulesEdit)
	env.text(testAdmin, "||ads.example.com^")

	if len(env.adguard.filtering.UserRules) != 0 {
		t.Errorf("rules = %v", env.adguard.filtering.UserRules)
	}
	if !strings.Contains(env.sender.last(t).Text, "Rule removed") {
		t.Errorf("text = %q", env.sender.last(t).Text)
	}
}

func TestAdGuard_StaticLeaseWizard(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgDHCPAdd)
	env.text(testAdmin, "AA:BB:CC:DD:EE:FF")
	env.text(testAdmin, "192.168.1.77")
	env.text(testAdmin, "printer")

	if len(env.adguard.dhcp.StaticLeases) != 1 {
		t.Fatalf("leases = %v", env.adguard.dhcp.StaticLeases)
	}
	l := env.adguard.dhcp.StaticLeases[0]
	if l.IP != "192.168.1.77" || l.Hostname != "printer" || l.MAC == "" {
		t.Errorf("lease = %+v", l)
	}
}

func TestAdGuard_FilterAddWizard(t *testing.T) {
	env := newTestEnv(t)

	env.press(testAdmin, tokenAdgFiltersAdd)
	env.text(testAdmin, "OISD")
	env.text(testAdmin, "not a url")
	env.text(testAdmin, "https://big.oisd.nl")

	if len(env.adguard.filtering.Filters) != 1 || env.adguard.filtering.Filters[0].URL != "https://big.oisd.nl" {
		t.Errorf("filters = %v", env.adguard.filtering.Filters)
	}
}

func TestAdGuard_DHCPScreen(t *testing.T) {
	env := newTestEnv(t)
	env.adguard.dhcp = adguard.DHCPStatus{Enabled: true, InterfaceName: "br-lan"}
	env.adguard.leases = []adguard.Lease{{MAC: "aa:bb:cc:dd:ee:01", IP: "192.168.1.30", Hostname: "tv"}}

	env.press(testAdmin, tokenAdgDHCP)

	text := env.sender.last(t).Text
	if !strings.Contains(text, "Leases \\(1\\)") || !strings.Contains(text, "`192.168.1.30`") {
		t.Errorf("dhcp = %q", text)
	}

	env.press(testAdmin, tokenAdgDHCPToggle)
	if env.adguard.dhcp.Enabled {
		t.Error("dhcp should be disabled")
	}
}
