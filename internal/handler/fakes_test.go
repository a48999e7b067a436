package handler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zinin/homeops-bot/internal/adguard"
	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/clash"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/session"
	"github.com/zinin/homeops-bot/internal/tempmail"
	"github.com/zinin/homeops-bot/internal/wizard"
)

const testAdmin int64 = 100

var errRemote = errors.New("connection refused")

// recordingSender keeps everything the handlers output.
type recordingSender struct {
	texts   []string
	plain   []string
	blocks  []string
	screens []menu.Screen
	edits   int
}

func (s *recordingSender) Send(_ int64, text string) error {
	s.texts = append(s.texts, text)
	return nil
}
func (s *recordingSender) SendPlain(_ int64, text string) error {
	s.plain = append(s.plain, text)
	return nil
}
func (s *recordingSender) SendLongPlain(_ int64, text string) error {
	s.plain = append(s.plain, text)
	return nil
}
func (s *recordingSender) SendCodeBlock(_ int64, header, content string) error {
	s.blocks = append(s.blocks, header+"\n"+content)
	return nil
}
func (s *recordingSender) SendScreen(_ int64, screen menu.Screen) error {
	s.screens = append(s.screens, screen)
	return nil
}
func (s *recordingSender) EditScreen(_ int64, _ int, screen menu.Screen) error {
	s.edits++
	s.screens = append(s.screens, screen)
	return nil
}
func (s *recordingSender) AckCallback(string, string, bool) error { return nil }

func (s *recordingSender) last(t *testing.T) menu.Screen {
	t.Helper()
	if len(s.screens) == 0 {
		t.Fatal("no screen shown")
	}
	return s.screens[len(s.screens)-1]
}

func (s *recordingSender) lastText(t *testing.T) string {
	t.Helper()
	if len(s.texts) == 0 {
		t.Fatal("no message sent")
	}
	return s.texts[len(s.texts)-1]
}

type fakeSystem struct {
	restarted []string
	scripts   []string
	ran       []string
	err       error
}

func (f *fakeSystem) Status(context.Context) (*service.SystemStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.SystemStatus{Uptime: "3 days", Load: "0.10 0.05 0.01", MemTotalMB: 512, MemUsedMB: 128}, nil
}
func (f *fakeSystem) Leases(context.Context) ([]service.Lease, error) {
	return []service.Lease{{MAC: "aa:bb:cc:dd:ee:ff", IP: "192.168.1.20", Hostname: "laptop"}}, f.err
}
func (f *fakeSystem) RestartService(_ context.Context, name string) error {
	f.restarted = append(f.restarted, name)
	return f.err
}
func (f *fakeSystem) Reboot(context.Context) error     { return f.err }
func (f *fakeSystem) DropCaches(context.Context) error { return f.err }
func (f *fakeSystem) Scripts(context.Context) ([]string, error) {
	return f.scripts, f.err
}
func (f *fakeSystem) RunScript(_ context.Context, path string) (string, error) {
	f.ran = append(f.ran, path)
	return "done: " + path, f.err
}

type fakeFirewall struct {
	sections  []service.Section
	redirects []wizard.Record
	rules     []wizard.Record
	deleted   []string
	adopted   []string
	err       error
}

func (f *fakeFirewall) List(_ context.Context, _ string, managedOnly bool) ([]service.Section, error) {
	var out []service.Section
	for _, s := range f.sections {
		if !managedOnly || s.Managed() {
			out = append(out, s)
		}
	}
	return out, f.err
}
func (f *fakeFirewall) AddRedirect(_ context.Context, r wizard.Record) error {
	f.redirects = append(f.redirects, r)
	return f.err
}
func (f *fakeFirewall) AddRule(_ context.Context, r wizard.Record) error {
	f.rules = append(f.rules, r)
	return f.err
}
func (f *fakeFirewall) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}
func (f *fakeFirewall) Adopt(_ context.Context, id string) (string, error) {
	f.adopted = append(f.adopted, id)
	return service.ManagedPrefix + id, f.err
}

type fakeNetwork struct {
	runs []string
}

func (f *fakeNetwork) Run(_ context.Context, tool service.NetTool, target string) (string, error) {
	f.runs = append(f.runs, string(tool)+" "+target)
	return "64 bytes from " + target, nil
}
func (f *fakeNetwork) QuickCheck(context.Context) (string, error) { return "wan: up", nil }
func (f *fakeNetwork) PublicIPs(context.Context) (service.PublicIPs, error) {
	return service.PublicIPs{V4: "198.51.100.23"}, nil
}

type fakeLogs struct {
	router, clash string
	err           error
	calls         []string
}

func (f *fakeLogs) Router(context.Context, int) (string, error) {
	f.calls = append(f.calls, "router")
	return f.router, f.err
}
func (f *fakeLogs) Clash(context.Context, int) (string, error) {
	f.calls = append(f.calls, "clash")
	return f.clash, f.err
}

type fakeAdGuard struct {
	status    adguard.Status
	features  map[string]bool
	dns       adguard.DNSInfo
	dnsSets   []map[string]any
	filtering adguard.Filtering
	dhcp      adguard.DHCPStatus
	leases    []adguard.Lease
	cycled    []string
	restarted bool
	err       error
}

func (f *fakeAdGuard) Status(context.Context) (*adguard.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.status, nil
}
func (f *fakeAdGuard) SetProtection(_ context.Context, enabled bool) error {
	f.status.ProtectionEnabled = enabled
	return f.err
}
func (f *fakeAdGuard) Stats(context.Context) (*adguard.StatsSummary, error) {
	return &adguard.StatsSummary{Queries: 200, Blocked: 50}, f.err
}
func (f *fakeAdGuard) Feature(_ context.Context, name string) (bool, error) {
	return f.features[name], f.err
}
func (f *fakeAdGuard) SetFeature(_ context.Context, name string, enabled bool) error {
	if f.features == nil {
		f.features = map[string]bool{}
	}
	f.features[name] = enabled
	return f.err
}
func (f *fakeAdGuard) Retention(context.Context, string) (*adguard.Retention, error) {
	return &adguard.Retention{Enabled: true, Interval: adguard.Intervals[0]}, f.err
}
func (f *fakeAdGuard) CycleRetention(_ context.Context, name string) (*adguard.Retention, error) {
	f.cycled = append(f.cycled, name)
	return &adguard.Retention{Enabled: true, Interval: adguard.Intervals[1]}, f.err
}
func (f *fakeAdGuard) DNSInfo(context.Context) (*adguard.DNSInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.dns, nil
}
func (f *fakeAdGuard) SetDNS(_ context.Context, changes map[string]any) error {
	f.dnsSets = append(f.dnsSets, changes)
	return f.err
}
func (f *fakeAdGuard) Filtering(context.Context) (*adguard.Filtering, error) {
	return &f.filtering, f.err
}
func (f *fakeAdGuard) AddFilter(_ context.Context, name, url string) error {
	f.filtering.Filters = append(f.filtering.Filters, adguard.Filter{Name: name, URL: url, Enabled: true})
	return f.err
}
func (f *fakeAdGuard) RemoveFilter(context.Context, string) error { return f.err }
func (f *fakeAdGuard) ToggleRule(_ context.Context, rule string) (bool, error) {
	var added bool
	f.filtering.UserRules, added = adguard.ToggleRule(f.filtering.UserRules, rule)
	return added, f.err
}
func (f *fakeAdGuard) DHCP(context.Context) (*adguard.DHCPStatus, error) {
	return &f.dhcp, f.err
}
func (f *fakeAdGuard) SetDHCPEnabled(_ context.Context, enabled bool) error {
	f.dhcp.Enabled = enabled
	return f.err
}
func (f *fakeAdGuard) AddStaticLease(_ context.Context, l adguard.Lease) error {
	f.dhcp.StaticLeases = append(f.dhcp.StaticLeases, l)
	return f.err
}
func (f *fakeAdGuard) Leases(context.Context) ([]adguard.Lease, error) { return f.leases, f.err }
func (f *fakeAdGuard) Restart(context.Context) error {
	f.restarted = true
	return f.err
}

type fakeClash struct {
	mode     string
	proxies  clash.Proxies
	selected map[string]string
	tested   []string
	err      error
}

func (f *fakeClash) Config(context.Context) (*clash.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &clash.Config{Mode: f.mode, LogLevel: "info"}, nil
}
func (f *fakeClash) SetMode(_ context.Context, mode string) error {
	f.mode = mode
	return f.err
}
func (f *fakeClash) ToggleDebug(context.Context) (string, error) { return "debug", f.err }
func (f *fakeClash) Version(context.Context) (*clash.Version, error) {
	return &clash.Version{Version: "v1.19.0", Meta: true}, f.err
}
func (f *fakeClash) Proxies(context.Context) (clash.Proxies, error) { return f.proxies, f.err }
func (f *fakeClash) Select(_ context.Context, group, node string) error {
	if f.selected == nil {
		f.selected = map[string]string{}
	}
	f.selected[group] = node
	return f.err
}
func (f *fakeClash) TestGroup(_ context.Context, group clash.Proxy) []clash.DelayResult {
	f.tested = append(f.tested, group.Name)
	out := make([]clash.DelayResult, len(group.All))
	for i, n := range group.All {
		out[i] = clash.DelayResult{Node: n, Delay: 100 * (i + 1)}
	}
	if len(out) > 0 {
		out[len(out)-1] = clash.DelayResult{Node: group.All[len(out)-1], Err: errRemote}
	}
	return out
}
func (f *fakeClash) Connections(context.Context) (*clash.ConnectionStats, error) {
	return &clash.ConnectionStats{Count: 3, UploadTotal: 2048, DownloadTotal: 1 << 20}, f.err
}
func (f *fakeClash) CloseConnections(context.Context) error { return f.err }
func (f *fakeClash) FlushFakeIP(context.Context) error      { return f.err }
func (f *fakeClash) Reload(context.Context) error           { return f.err }

type fakeMail struct {
	address string
	inbox   []tempmail.Summary
	message tempmail.Message
}

func (f *fakeMail) Generate(context.Context) (string, error) { return f.address, nil }
func (f *fakeMail) Inbox(context.Context, string) ([]tempmail.Summary, error) {
	return f.inbox, nil
}
func (f *fakeMail) Read(_ context.Context, _ string, id int) (*tempmail.Message, error) {
	m := f.message
	m.ID = id
	return &m, nil
}

type fakeAI struct {
	prompts []string
	answer  string
	err     error
}

func (f *fakeAI) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

// testEnv is a fully wired router over fake backends.
type testEnv struct {
	deps     *Deps
	router   *router.Router
	sender   *recordingSender
	system   *fakeSystem
	firewall *fakeFirewall
	network  *fakeNetwork
	logs     *fakeLogs
	adguard  *fakeAdGuard
	clash    *fakeClash
	mail     *fakeMail
	ai       *fakeAI
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sender:   &recordingSender{},
		system:   &fakeSystem{},
		firewall: &fakeFirewall{},
		network:  &fakeNetwork{},
		logs:     &fakeLogs{router: "kernel: oops", clash: "mihomo: dial timeout"},
		adguard:  &fakeAdGuard{status: adguard.Status{ProtectionEnabled: true, Version: "v0.107.0"}},
		clash:    &fakeClash{mode: "rule"},
		mail:     &fakeMail{address: "box@1secmail.com"},
		ai:       &fakeAI{answer: "All good."},
	}
	sessions := session.New()
	gate := auth.NewGate(testAdmin, auth.NewFileStore(filepath.Join(t.TempDir(), "permissions.json")))
	env.deps = &Deps{
		Sender:   env.sender,
		Gate:     gate,
		Sessions: sessions,
		Wizards:  wizard.NewEngine(sessions),
		System:   env.system,
		Firewall: env.firewall,
		Network:  env.network,
		Logs:     env.logs,
		AdGuard:  env.adguard,
		Clash:    env.clash,
		AI:       env.ai,
		Mail:     env.mail,
	}
	env.router = router.New(gate)
	Register(env.router, env.deps)
	return env
}

func (e *testEnv) grant(t *testing.T, id int64, features ...string) {
	t.Helper()
	for _, f := range features {
		if _, err := e.deps.Gate.Grant(testAdmin, id, f); err != nil {
			t.Fatalf("grant %s: %v", f, err)
		}
	}
}

func (e *testEnv) command(id int64, line string) bool {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	ev := router.Event{Kind: router.KindCommand, Identity: id, ChatID: id, Verb: fields[0], Args: fields[1:]}
	ev.Text = strings.Join(ev.Args, " ")
	return e.router.Dispatch(context.Background(), ev)
}

func (e *testEnv) press(id int64, token string) bool {
	ev := router.Event{Kind: router.KindCallback, Identity: id, ChatID: id, MessageID: 1, Token: token}
	return e.router.Dispatch(context.Background(), ev)
}

func (e *testEnv) text(id int64, text string) bool {
	ev := router.Event{Kind: router.KindText, Identity: id, ChatID: id, Text: text}
	return e.router.Dispatch(context.Background(), ev)
}
