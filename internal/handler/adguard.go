// internal/handler/adguard.go
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zinin/homeops-bot/internal/adguard"
	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/wizard"
)

const (
	tokenAdgMain       = "wrt_adg"
	tokenAdgToggle     = "wrt_adg_toggle"
	tokenAdgGeneral    = "wrt_adg_general"
	tokenAdgFeature    = "wrt_adg_feat_"
	tokenAdgCycle      = "wrt_adg_cycle_"
	tokenAdgDNS        = "wrt_adg_dns"
	tokenAdgDNSSet     = "wrt_adg_dns_set_"
	tokenAdgDNSAdv     = "wrt_adg_dns_adv"
	tokenAdgDNSToggle  = "wrt_adg_dns_toggle_"
	tokenAdgDNSBlock   = "wrt_adg_dns_bm"
	tokenAdgDHCP       = "wrt_adg_dhcp"
	tokenAdgDHCPToggle = "wrt_adg_dhcp_toggle"
	tokenAdgDHCPAdd    = "wrt_adg_dhcp_add"
	tokenAdgRules      = "wrt_adg_rules"
	tokenAdgRulesEdit  = "wrt_adg_rules_edit"
	tokenAdgFilters    = "wrt_adg_filters"
	tokenAdgFiltersAdd = "wrt_adg_filters_add"
	tokenAdgFiltersDel = "wrt_adg_filters_del"
	tokenAdgRestart    = "wrt_adg_restart"

	wizardAdgUpstream  = "adg_upstream"
	wizardAdgBootstrap = "adg_bootstrap"
	wizardAdgRateLimit = "adg_ratelimit"
	wizardAdgCache     = "adg_cache"
	wizardAdgRule      = "adg_rule"
	wizardAdgFilterAdd = "adg_filter_add"
	wizardAdgFilterDel = "adg_filter_del"
	wizardAdgLease     = "adg_lease"

	maxListedRules = 30
)

var adgFeatures = []struct {
	name  string
	label string
}{
	{adguard.SafeSearch, "Safe search"},
	{adguard.Parental, "Parental control"},
	{adguard.SafeBrowsing, "Safe browsing"},
}

// dnsSetWizards maps the wrt_adg_dns_set_<key> suffix to its wizard.
var dnsSetWizards = map[string]string{
	"upstream":  wizardAdgUpstream,
	"bootstrap": wizardAdgBootstrap,
	"ratelimit": wizardAdgRateLimit,
	"cache":     wizardAdgCache,
}

// AdGuardHandler serves the AdGuard Home menus under the router menu.
type AdGuardHandler struct {
	deps *Deps
}

func NewAdGuardHandler(deps *Deps) *AdGuardHandler {
	return &AdGuardHandler{deps: deps}
}

func (h *AdGuardHandler) Register(r *router.Router) {
	wrt := func(fn router.HandlerFunc) router.HandlerFunc {
		return r.Require(auth.FeatureWrt, h.configured(fn))
	}

	r.Exact(tokenAdgMain, wrt(h.HandleMain))
	r.Exact(tokenAdgToggle, wrt(h.HandleToggle))
	r.Exact(tokenAdgGeneral, wrt(h.HandleGeneral))
	r.Callback(tokenAdgFeature, wrt(h.HandleFeature))
	r.Callback(tokenAdgCycle, wrt(h.HandleCycle))
	r.Exact(tokenAdgDNS, wrt(h.HandleDNS))
	r.Callback(tokenAdgDNSSet, wrt(h.HandleDNSSet))
	r.Exact(tokenAdgDNSAdv, wrt(h.HandleDNSAdvanced))
	r.Callback(tokenAdgDNSToggle, wrt(h.HandleDNSToggle))
	r.Exact(tokenAdgDNSBlock, wrt(h.HandleBlockingMode))
	r.Exact(tokenAdgDHCP, wrt(h.HandleDHCP))
	r.Exact(tokenAdgDHCPToggle, wrt(h.HandleDHCPToggle))
	r.Exact(tokenAdgDHCPAdd, wrt(h.start(wizardAdgLease)))
	r.Exact(tokenAdgRules, wrt(h.HandleRules))
	r.Exact(tokenAdgRulesEdit, wrt(h.start(wizardAdgRule)))
	r.Exact(tokenAdgFilters, wrt(h.HandleFilters))
	r.Exact(tokenAdgFiltersAdd, wrt(h.start(wizardAdgFilterAdd)))
	r.Exact(tokenAdgFiltersDel, wrt(h.start(wizardAdgFilterDel)))
	r.Exact(tokenAdgRestart, wrt(h.HandleRestart))

	for _, t := range h.templates() {
		t.Feature = auth.FeatureWrt
		h.deps.Wizards.Register(t)
	}
}

func (h *AdGuardHandler) configured(fn router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		if h.deps.available(ev, h.deps.AdGuard != nil, "AdGuard Home") {
			fn(ctx, ev)
		}
	}
}

func (h *AdGuardHandler) start(kind string) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		h.deps.startWizard(ev, kind, nil)
	}
}

func (h *AdGuardHandler) templates() []*wizard.Template {
	return []*wizard.Template{
		{
			Kind:  wizardAdgUpstream,
			Title: "Upstream DNS servers",
			Steps: []wizard.Step{{Field: "servers", Validate: wizard.Lines,
				Prompt: "Send upstream servers, one per line, e.g.\nhttps://dns.quad9.net/dns-query\n1.1.1.1"}},
			Commit: h.commitDNSList("upstream_dns", "servers"),
			Back:   tokenAdgDNS,
		},
		{
			Kind:  wizardAdgBootstrap,
			Title: "Bootstrap DNS servers",
			Steps: []wizard.Step{{Field: "servers", Validate: wizard.Lines,
				Prompt: "Send bootstrap servers (plain IPs), one per line."}},
			Commit: h.commitDNSList("bootstrap_dns", "servers"),
			Back:   tokenAdgDNS,
		},
		{
			Kind:   wizardAdgRateLimit,
			Title:  "Rate limit",
			Steps:  []wizard.Step{{Field: "limit", Prompt: "Requests per second per client, 0 for unlimited.", Validate: wizard.NonNegativeInt}},
			Commit: h.commitDNSInt("ratelimit", "limit", 1),
			Back:   tokenAdgDNS,
		},
		{
			Kind:   wizardAdgCache,
			Title:  "Cache size",
			Steps:  []wizard.Step{{Field: "mb", Prompt: "DNS cache size in MB, 0 to disable.", Validate: wizard.NonNegativeInt}},
			Commit: h.commitDNSInt("cache_size", "mb", 1024*1024),
			Back:   tokenAdgDNS,
		},
		{
			Kind:  wizardAdgRule,
			Title: "Toggle custom rule",
			Steps: []wizard.Step{{Field: "rule", Validate: wizard.NonEmpty,
				Prompt: "Send a rule, e.g. ||ads.example.com^\nAn existing rule is removed, a new one is added."}},
			Commit: h.commitRule,
			Back:   tokenAdgRules,
		},
		{
			Kind:  wizardAdgFilterAdd,
			Title: "Add filter list",
			Steps: []wizard.Step{
				{Field: "name", Prompt: "Filter list name.", Validate: wizard.NonEmpty},
				{Field: "url", Prompt: "Filter list URL.", Validate: wizard.URL},
			},
			Commit: h.commitFilterAdd,
			Back:   tokenAdgFilters,
		},
		{
			Kind:   wizardAdgFilterDel,
			Title:  "Remove filter list",
			Steps:  []wizard.Step{{Field: "url", Prompt: "URL of the filter list to remove.", Validate: wizard.URL}},
			Commit: h.commitFilterDel,
			Back:   tokenAdgFilters,
		},
		{
			Kind:  wizardAdgLease,
			Title: "New static lease",
			Steps: []wizard.Step{
				{Field: "mac", Prompt: "Device MAC address, e.g. aa:bb:cc:dd:ee:ff", Validate: wizard.MAC},
				{Field: "ip", Prompt: "IP address to reserve.", Validate: wizard.IPv4},
				{Field: "hostname", Prompt: "Host name.", Validate: wizard.Hostname},
			},
			Commit: h.commitLease,
			Back:   tokenAdgDHCP,
		},
	}
}

// HandleMain shows protection state and today's numbers
func (h *AdGuardHandler) HandleMain(ctx context.Context, ev router.Event) {
	st, err := h.deps.AdGuard.Status(ctx)
	if err != nil {
		h.deps.fail(ev, "AdGuard Home unavailable", err, tokenWrtMain)
		return
	}

	var sb strings.Builder
	sb.WriteString(telegram.Bold("🛡 AdGuard Home") + "\n\n")
	sb.WriteString(telegram.Escapef("Protection: %s\n", onOff(st.ProtectionEnabled)))
	if st.Version != "" {
		sb.WriteString(telegram.Escapef("Version: %s\n", st.Version))
	}
	if stats, err := h.deps.AdGuard.Stats(ctx); err == nil {
		pct := 0.0
		if stats.Queries > 0 {
			pct = float64(stats.Blocked) * 100 / float64(stats.Queries)
		}
		sb.WriteString(telegram.Escapef("Queries: %d, blocked: %d (%.1f%%)\n", stats.Queries, stats.Blocked, pct))
		sb.WriteString(telegram.Escapef("Avg processing: %.1f ms\n", stats.AvgProcessingS*1000))
	}

	toggle := "⏸ Pause protection"
	if !st.ProtectionEnabled {
		toggle = "▶️ Resume protection"
	}
	b := menu.NewBuilder().
		Button(toggle, tokenAdgToggle).
		Row().
		Button("⚙️ General", tokenAdgGeneral).
		Button("🌐 DNS", tokenAdgDNS).
		Button("📡 DHCP", tokenAdgDHCP).
		Button("📝 Custom rules", tokenAdgRules).
		Button("📚 Filters", tokenAdgFilters).
		Button("🔄 Restart", tokenAdgRestart).
		Columns(2).
		Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *AdGuardHandler) HandleToggle(ctx context.Context, ev router.Event) {
	st, err := h.deps.AdGuard.Status(ctx)
	if err != nil {
		h.deps.fail(ev, "AdGuard Home unavailable", err, tokenAdgMain)
		return
	}
	if err := h.deps.AdGuard.SetProtection(ctx, !st.ProtectionEnabled); err != nil {
		h.deps.fail(ev, "Toggle protection failed", err, tokenAdgMain)
		return
	}
	h.HandleMain(ctx, ev)
}

// HandleGeneral shows feature switches and retention settings
func (h *AdGuardHandler) HandleGeneral(ctx context.Context, ev router.Event) {
	var sb strings.Builder
	sb.WriteString(telegram.Bold("⚙️ General settings") + "\n\n")
	b := menu.NewBuilder()
	for _, f := range adgFeatures {
		on, err := h.deps.AdGuard.Feature(ctx, f.name)
		state := onOff(on)
		if err != nil {
			state = "unknown"
		}
		sb.WriteString(telegram.Escapef("%s: %s\n", f.label, state))
		b.Button(f.label, tokenAdgFeature+f.name)
	}
	b.Columns(1)
	for _, name := range []string{adguard.QueryLog, adguard.Stats} {
		state := "unknown"
		if r, err := h.deps.AdGuard.Retention(ctx, name); err == nil {
			if r.Enabled {
				state = adguard.IntervalLabel(r.Interval)
			} else {
				state = adguard.IntervalLabel(0)
			}
		}
		sb.WriteString(telegram.Escapef("%s retention: %s\n", retentionLabel(name), state))
		b.Button("🔁 "+retentionLabel(name), tokenAdgCycle+name)
	}
	b.Columns(2).Back(labelBack, tokenAdgMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *AdGuardHandler) HandleFeature(ctx context.Context, ev router.Event) {
	on, err := h.deps.AdGuard.Feature(ctx, ev.Arg)
	if err == nil {
		err = h.deps.AdGuard.SetFeature(ctx, ev.Arg, !on)
	}
	if err != nil {
		h.deps.fail(ev, "Toggle "+ev.Arg+" failed", err, tokenAdgGeneral)
		return
	}
	h.HandleGeneral(ctx, ev)
}

func (h *AdGuardHandler) HandleCycle(ctx context.Context, ev router.Event) {
	if ev.Arg != adguard.QueryLog && ev.Arg != adguard.Stats {
		return
	}
	if _, err := h.deps.AdGuard.CycleRetention(ctx, ev.Arg); err != nil {
		h.deps.fail(ev, "Change retention failed", err, tokenAdgGeneral)
		return
	}
	h.HandleGeneral(ctx, ev)
}

// HandleDNS shows the DNS server configuration
func (h *AdGuardHandler) HandleDNS(ctx context.Context, ev router.Event) {
	info, err := h.deps.AdGuard.DNSInfo(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read DNS settings", err, tokenAdgMain)
		return
	}

	var sb strings.Builder
	sb.WriteString(telegram.Bold("🌐 DNS settings") + "\n\n")
	sb.WriteString(telegram.EscapeMarkdownV2("Upstream:") + "\n")
	for _, u := range info.Upstream {
		sb.WriteString(telegram.EscapeMarkdownV2("• ") + telegram.Code(u) + "\n")
	}
	sb.WriteString(telegram.EscapeMarkdownV2("Bootstrap: ") + telegram.Code(strings.Join(info.Bootstrap, ", ")) + "\n")
	sb.WriteString(telegram.Escapef("Rate limit: %d rps\n", info.RateLimit))
	sb.WriteString(telegram.Escapef("Cache: %d MB\n", info.CacheSize/(1024*1024)))

	b := menu.NewBuilder().
		Button("✏️ Upstream", tokenAdgDNSSet+"upstream").
		Button("✏️ Bootstrap", tokenAdgDNSSet+"bootstrap").
		Button("✏️ Rate limit", tokenAdgDNSSet+"ratelimit").
		Button("✏️ Cache", tokenAdgDNSSet+"cache").
		Columns(2).
		Button("🔧 Advanced", tokenAdgDNSAdv).
		Row().
		Back(labelBack, tokenAdgMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *AdGuardHandler) HandleDNSSet(ctx context.Context, ev router.Event) {
	kind, ok := dnsSetWizards[ev.Arg]
	if !ok {
		return
	}
	h.deps.startWizard(ev, kind, nil)
}

// HandleDNSAdvanced shows DNSSEC, IPv6 and blocking mode
func (h *AdGuardHandler) HandleDNSAdvanced(ctx context.Context, ev router.Event) {
	info, err := h.deps.AdGuard.DNSInfo(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read DNS settings", err, tokenAdgDNS)
		return
	}
	text := telegram.Bold("🔧 Advanced DNS") + "\n\n" +
		telegram.Escapef("DNSSEC: %s\nIPv6 (AAAA): %s\nBlocking mode: %s\n",
			onOff(info.DNSSEC), onOff(!info.DisableIPv6), info.BlockingMode)
	b := menu.NewBuilder().
		Button("🔐 DNSSEC", tokenAdgDNSToggle+"dnssec").
		Button("6️⃣ IPv6", tokenAdgDNSToggle+"ipv6").
		Row().
		Button("🚫 Blocking mode", tokenAdgDNSBlock).
		Row().
		Back(labelBack, tokenAdgDNS)
	h.deps.show(ev, b.Build(text))
}

func (h *AdGuardHandler) HandleDNSToggle(ctx context.Context, ev router.Event) {
	info, err := h.deps.AdGuard.DNSInfo(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read DNS settings", err, tokenAdgDNSAdv)
		return
	}
	var change map[string]any
	switch ev.Arg {
	case "dnssec":
		change = map[string]any{"dnssec_enabled": !info.DNSSEC}
	case "ipv6":
		change = map[string]any{"disable_ipv6": !info.DisableIPv6}
	default:
		return
	}
	if err := h.deps.AdGuard.SetDNS(ctx, change); err != nil {
		h.deps.fail(ev, "Change DNS settings failed", err, tokenAdgDNSAdv)
		return
	}
	h.HandleDNSAdvanced(ctx, ev)
}

func (h *AdGuardHandler) HandleBlockingMode(ctx context.Context, ev router.Event) {
	info, err := h.deps.AdGuard.DNSInfo(ctx)
	if err == nil {
		err = h.deps.AdGuard.SetDNS(ctx, map[string]any{"blocking_mode": adguard.NextBlockingMode(info.BlockingMode)})
	}
	if err != nil {
		h.deps.fail(ev, "Change blocking mode failed", err, tokenAdgDNSAdv)
		return
	}
	h.HandleDNSAdvanced(ctx, ev)
}

// HandleDHCP shows the DHCP server and its leases
func (h *AdGuardHandler) HandleDHCP(ctx context.Context, ev router.Event) {
	st, err := h.deps.AdGuard.DHCP(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read DHCP settings", err, tokenAdgMain)
		return
	}

	var sb strings.Builder
	sb.WriteString(telegram.Bold("📡 DHCP") + "\n\n")
	sb.WriteString(telegram.Escapef("Server: %s\n", onOff(st.Enabled)))
	if st.InterfaceName != "" {
		sb.WriteString(telegram.Escapef("Interface: %s\n", st.InterfaceName))
	}
	if st.V4 != nil && st.V4.RangeStart != "" {
		sb.WriteString(telegram.Escapef("Range: %s – %s\n", st.V4.RangeStart, st.V4.RangeEnd))
	}

	leases, err := h.deps.AdGuard.Leases(ctx)
	if err != nil {
		sb.WriteString(telegram.Escapef("\nLeases unavailable: %v\n", err))
	} else {
		sb.WriteString(telegram.Escapef("\nLeases (%d):\n", len(leases)))
		for _, l := range leases {
			sb.WriteString(telegram.EscapeMarkdownV2("• "+orUnknown(l.Hostname)+" ") + telegram.Code(l.IP) + "\n")
		}
	}

	toggle := "▶️ Enable DHCP"
	if st.Enabled {
		toggle = "⏸ Disable DHCP"
	}
	b := menu.NewBuilder().
		Button(toggle, tokenAdgDHCPToggle).
		Button("➕ Static lease", tokenAdgDHCPAdd).
		Row().
		Back(labelBack, tokenAdgMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *AdGuardHandler) HandleDHCPToggle(ctx context.Context, ev router.Event) {
	st, err := h.deps.AdGuard.DHCP(ctx)
	if err == nil {
		err = h.deps.AdGuard.SetDHCPEnabled(ctx, !st.Enabled)
	}
	if err != nil {
		h.deps.fail(ev, "Toggle DHCP failed", err, tokenAdgDHCP)
		return
	}
	h.HandleDHCP(ctx, ev)
}

// HandleRules lists the custom filtering rules
func (h *AdGuardHandler) HandleRules(ctx context.Context, ev router.Event) {
	f, err := h.deps.AdGuard.Filtering(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read rules", err, tokenAdgMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold(fmt.Sprintf("📝 Custom rules (%d)", len(f.UserRules))) + "\n\n")
	for i, rule := range f.UserRules {
		if i == maxListedRules {
			sb.WriteString(telegram.Escapef("… and %d more\n", len(f.UserRules)-maxListedRules))
			break
		}
		sb.WriteString(telegram.Code(rule) + "\n")
	}
	b := menu.NewBuilder().
		Button("✏️ Add / remove rule", tokenAdgRulesEdit).
		Row().
		Back(labelBack, tokenAdgMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleFilters lists the subscribed filter lists
func (h *AdGuardHandler) HandleFilters(ctx context.Context, ev router.Event) {
	f, err := h.deps.AdGuard.Filtering(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read filters", err, tokenAdgMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold(fmt.Sprintf("📚 Filter lists (%d)", len(f.Filters))) + "\n\n")
	for _, fl := range f.Filters {
		mark := "✅"
		if !fl.Enabled {
			mark = "⏸"
		}
		sb.WriteString(telegram.Escapef("%s %s (%d rules)\n", mark, fl.Name, fl.RulesCount))
		sb.WriteString(telegram.Code(fl.URL) + "\n")
	}
	b := menu.NewBuilder().
		Button("➕ Add", tokenAdgFiltersAdd).
		Button("➖ Remove", tokenAdgFiltersDel).
		Row().
		Back(labelBack, tokenAdgMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *AdGuardHandler) HandleRestart(ctx context.Context, ev router.Event) {
	if err := h.deps.AdGuard.Restart(ctx); err != nil {
		h.deps.fail(ev, "Restart failed", err, tokenAdgMain)
		return
	}
	h.deps.done(ev, "AdGuard Home restarted.", tokenAdgMain)
}

func (h *AdGuardHandler) commitDNSList(key, field string) wizard.CommitFunc {
	return func(ctx context.Context, c wizard.Commit) (string, error) {
		servers := wizard.SplitLines(c.Record.Get(field))
		if err := h.deps.AdGuard.SetDNS(ctx, map[string]any{key: servers}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved %d server(s).", len(servers)), nil
	}
}

func (h *AdGuardHandler) commitDNSInt(key, field string, scale int) wizard.CommitFunc {
	return func(ctx context.Context, c wizard.Commit) (string, error) {
		n, err := strconv.Atoi(c.Record.Get(field))
		if err != nil {
			return "", err
		}
		if err := h.deps.AdGuard.SetDNS(ctx, map[string]any{key: n * scale}); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s set to %d.", key, n), nil
	}
}

func (h *AdGuardHandler) commitRule(ctx context.Context, c wizard.Commit) (string, error) {
	rule := c.Record.Get("rule")
	added, err := h.deps.AdGuard.ToggleRule(ctx, rule)
	if err != nil {
		return "", err
	}
	if added {
		return "Rule added: " + rule, nil
	}
	return "Rule removed: " + rule, nil
}

func (h *AdGuardHandler) commitFilterAdd(ctx context.Context, c wizard.Commit) (string, error) {
	if err := h.deps.AdGuard.AddFilter(ctx, c.Record.Get("name"), c.Record.Get("url")); err != nil {
		return "", err
	}
	return "Filter list " + c.Record.Get("name") + " added.", nil
}

func (h *AdGuardHandler) commitFilterDel(ctx context.Context, c wizard.Commit) (string, error) {
	if err := h.deps.AdGuard.RemoveFilter(ctx, c.Record.Get("url")); err != nil {
		return "", err
	}
	return "Filter list removed.", nil
}

func (h *AdGuardHandler) commitLease(ctx context.Context, c wizard.Commit) (string, error) {
	l := adguard.Lease{MAC: c.Record.Get("mac"), IP: c.Record.Get("ip"), Hostname: c.Record.Get("hostname")}
	if err := h.deps.AdGuard.AddStaticLease(ctx, l); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s reserved for %s.", l.IP, l.Hostname), nil
}

func retentionLabel(name string) string {
	if name == adguard.QueryLog {
		return "Query log"
	}
	return "Statistics"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
