// internal/handler/clash.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/clash"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

const (
	tokenClashMain    = "clash_main"
	tokenClashModes   = "clash_modes"
	tokenClashSetMode = "clash_setmode_"
	tokenClashStatus  = "clash_status"
	tokenClashGroups  = "clash_groups"
	tokenClashGroup   = "clash_group_"
	tokenClashSelect  = "clash_sel_"
	tokenClashTest    = "clash_test_"
	tokenClashTools   = "clash_tools"
	tokenClashDebug   = "clash_debug"
	tokenClashReload  = "clash_reload"
	tokenClashFakeIP  = "clash_fakeip"
	tokenClashConns   = "clash_conns"
	tokenClashLogs    = "clash_logs"

	clashLogLines = 80
	maxNodes      = 90
)

// ClashHandler serves the OpenClash menus
type ClashHandler struct {
	deps *Deps
}

func NewClashHandler(deps *Deps) *ClashHandler {
	return &ClashHandler{deps: deps}
}

func (h *ClashHandler) Register(r *router.Router) {
	cl := func(fn router.HandlerFunc) router.HandlerFunc {
		return r.Require(auth.FeatureClash, h.configured(fn))
	}

	r.Command("clash", cl(h.HandleMain))
	r.Exact(tokenClashMain, cl(h.HandleMain))
	r.Exact(tokenClashModes, cl(h.HandleModes))
	r.Callback(tokenClashSetMode, cl(h.HandleSetMode))
	r.Exact(tokenClashStatus, cl(h.HandleStatus))
	r.Exact(tokenClashGroups, cl(h.HandleGroups))
	r.Callback(tokenClashGroup, cl(h.HandleGroup))
	r.Callback(tokenClashSelect, cl(h.HandleSelect))
	r.Callback(tokenClashTest, cl(h.HandleTest))
	r.Exact(tokenClashTools, cl(h.HandleTools))
	r.Exact(tokenClashDebug, cl(h.HandleDebug))
	r.Exact(tokenClashReload, cl(h.HandleReload))
	r.Exact(tokenClashFakeIP, cl(h.HandleFakeIP))
	r.Exact(tokenClashConns, cl(h.HandleCloseConns))
	r.Exact(tokenClashLogs, r.Require(auth.FeatureClash, h.HandleLogs))
}

func (h *ClashHandler) configured(fn router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		if h.deps.available(ev, h.deps.Clash != nil, "OpenClash") {
			fn(ctx, ev)
		}
	}
}

// HandleMain shows the current mode and the menu
func (h *ClashHandler) HandleMain(ctx context.Context, ev router.Event) {
	text := telegram.Bold("🐱 OpenClash") + "\n\n"
	if cfg, err := h.deps.Clash.Config(ctx); err != nil {
		text += "⚠️ " + telegram.EscapeMarkdownV2("Controller unavailable: "+err.Error())
	} else {
		text += telegram.Escapef("Mode: %s", cfg.Mode)
	}

	b := menu.NewBuilder().
		Button("🔀 Mode", tokenClashModes).
		Button("🌍 Proxy groups", tokenClashGroups).
		Button("📊 Status", tokenClashStatus).
		Button("🧰 Tools", tokenClashTools).
		Columns(2)
	if h.deps.Gate.HasFeature(ev.Identity, auth.FeatureAI) {
		b.Button("🤖 AI log analysis", tokenAIAnalyzeClash).Row()
	}
	b.Back(labelMainMenu, tokenMain)
	h.deps.show(ev, b.Build(text))
}

func (h *ClashHandler) HandleModes(ctx context.Context, ev router.Event) {
	cfg, err := h.deps.Clash.Config(ctx)
	if err != nil {
		h.deps.fail(ev, "Controller unavailable", err, tokenClashMain)
		return
	}
	b := menu.NewBuilder()
	for _, m := range clash.Modes {
		label := strings.ToUpper(m[:1]) + m[1:]
		if strings.EqualFold(cfg.Mode, m) {
			label = "✅ " + label
		}
		b.Button(label, tokenClashSetMode+m)
	}
	b.Columns(3).Back(labelBack, tokenClashMain)
	h.deps.show(ev, b.Build(telegram.Bold("🔀 Mode")+"\n"+telegram.Escapef("Current: %s", cfg.Mode)))
}

func (h *ClashHandler) HandleSetMode(ctx context.Context, ev router.Event) {
	if err := h.deps.Clash.SetMode(ctx, ev.Arg); err != nil {
		h.deps.fail(ev, "Set mode failed", err, tokenClashModes)
		return
	}
	h.HandleModes(ctx, ev)
}

// HandleStatus shows version, ports and traffic
func (h *ClashHandler) HandleStatus(ctx context.Context, ev router.Event) {
	cfg, err := h.deps.Clash.Config(ctx)
	if err != nil {
		h.deps.fail(ev, "Controller unavailable", err, tokenClashMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold("📊 OpenClash status") + "\n\n")
	if v, err := h.deps.Clash.Version(ctx); err == nil {
		sb.WriteString(telegram.Escapef("Version: %s\n", v.Version))
	}
	sb.WriteString(telegram.Escapef("Mode: %s\nLog level: %s\n", cfg.Mode, cfg.LogLevel))
	if cfg.MixedPort > 0 {
		sb.WriteString(telegram.Escapef("Mixed port: %d\n", cfg.MixedPort))
	}
	if st, err := h.deps.Clash.Connections(ctx); err == nil {
		sb.WriteString(telegram.Escapef("Connections: %d\n↑ %s  ↓ %s\n",
			st.Count, clash.FormatBytes(st.UploadTotal), clash.FormatBytes(st.DownloadTotal)))
	}
	b := menu.NewBuilder().Button("🔄 Refresh", tokenClashStatus).Row().Back(labelBack, tokenClashMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleGroups lists selector groups with their current node
func (h *ClashHandler) HandleGroups(ctx context.Context, ev router.Event) {
	groups, err := h.groups(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read proxies", err, tokenClashMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold("🌍 Proxy groups") + "\n\n")
	if len(groups) == 0 {
		sb.WriteString(telegram.EscapeMarkdownV2("No selector groups."))
	}
	b := menu.NewBuilder()
	for i, g := range groups {
		sb.WriteString(telegram.Escapef("• %s → %s\n", g.Name, g.Now))
		b.Button(g.Name, tokenClashGroup+strconv.Itoa(i))
	}
	b.Columns(2).Back(labelBack, tokenClashMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleGroup lists the nodes of one group with their last delay
func (h *ClashHandler) HandleGroup(ctx context.Context, ev router.Event) {
	gi, group, proxies, ok := h.group(ctx, ev, ev.Arg)
	if !ok {
		return
	}
	h.showGroup(ev, gi, group, func(node string) string {
		if d := proxies[node].LastDelay(); d > 0 {
			return fmt.Sprintf(" %dms", d)
		}
		return ""
	})
}

func (h *ClashHandler) showGroup(ev router.Event, gi int, group clash.Proxy, suffix func(node string) string) {
	b := menu.NewBuilder()
	for ni, node := range group.All {
		if ni == maxNodes {
			break
		}
		label := node + suffix(node)
		if node == group.Now {
			label = "✅ " + label
		}
		b.Button(label, fmt.Sprintf("%s%d_%d", tokenClashSelect, gi, ni))
	}
	b.Columns(2).
		Button("⚡ Test delays", tokenClashTest+strconv.Itoa(gi)).
		Row().
		Back(labelBack, tokenClashGroups)
	text := telegram.Bold("🌍 "+group.Name) + "\n" + telegram.Escapef("Selected: %s", group.Now)
	h.deps.show(ev, b.Build(text))
}

func (h *ClashHandler) HandleSelect(ctx context.Context, ev router.Event) {
	gs, ns, found := strings.Cut(ev.Arg, "_")
	ni, err := strconv.Atoi(ns)
	if !found || err != nil {
		return
	}
	gi, group, _, ok := h.group(ctx, ev, gs)
	if !ok {
		return
	}
	if ni < 0 || ni >= len(group.All) {
		h.deps.fail(ev, "Select failed", errors.New("node list changed, reopen the group"), tokenClashGroups)
		return
	}
	node := group.All[ni]
	if err := h.deps.Clash.Select(ctx, group.Name, node); err != nil {
		h.deps.fail(ev, "Select failed", err, tokenClashGroup+strconv.Itoa(gi))
		return
	}
	group.Now = node
	h.showGroup(ev, gi, group, func(string) string { return "" })
}

// HandleTest measures every node of a group concurrently
func (h *ClashHandler) HandleTest(ctx context.Context, ev router.Event) {
	gi, group, _, ok := h.group(ctx, ev, ev.Arg)
	if !ok {
		return
	}
	delays := make(map[string]string, len(group.All))
	for _, r := range h.deps.Clash.TestGroup(ctx, group) {
		if r.Err != nil || r.Delay <= 0 {
			delays[r.Node] = " ✖"
		} else {
			delays[r.Node] = fmt.Sprintf(" %dms", r.Delay)
		}
	}
	h.showGroup(ev, gi, group, func(node string) string { return delays[node] })
}

// HandleTools shows maintenance actions
func (h *ClashHandler) HandleTools(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("🐞 Toggle debug log", tokenClashDebug).
		Button("♻️ Reload config", tokenClashReload).
		Button("🧽 Flush fake-IP", tokenClashFakeIP).
		Button("✂️ Close connections", tokenClashConns).
		Button("📜 Logs", tokenClashLogs).
		Columns(2).
		Back(labelBack, tokenClashMain)
	h.deps.show(ev, b.Build(telegram.Bold("🧰 Tools")))
}

func (h *ClashHandler) HandleDebug(ctx context.Context, ev router.Event) {
	level, err := h.deps.Clash.ToggleDebug(ctx)
	if err != nil {
		h.deps.fail(ev, "Change log level failed", err, tokenClashTools)
		return
	}
	h.deps.done(ev, "Log level: "+level, tokenClashTools)
}

func (h *ClashHandler) HandleReload(ctx context.Context, ev router.Event) {
	if err := h.deps.Clash.Reload(ctx); err != nil {
		h.deps.fail(ev, "Reload failed", err, tokenClashTools)
		return
	}
	h.deps.done(ev, "Configuration reloaded.", tokenClashTools)
}

func (h *ClashHandler) HandleFakeIP(ctx context.Context, ev router.Event) {
	if err := h.deps.Clash.FlushFakeIP(ctx); err != nil {
		h.deps.fail(ev, "Flush failed", err, tokenClashTools)
		return
	}
	h.deps.done(ev, "Fake-IP cache flushed.", tokenClashTools)
}

func (h *ClashHandler) HandleCloseConns(ctx context.Context, ev router.Event) {
	if err := h.deps.Clash.CloseConnections(ctx); err != nil {
		h.deps.fail(ev, "Close connections failed", err, tokenClashTools)
		return
	}
	h.deps.done(ev, "All connections closed.", tokenClashTools)
}

// HandleLogs sends the OpenClash log tail read over SSH
func (h *ClashHandler) HandleLogs(ctx context.Context, ev router.Event) {
	logs, err := h.deps.Logs.Clash(ctx, clashLogLines)
	if err != nil {
		h.deps.fail(ev, "Cannot read logs", err, tokenClashTools)
		return
	}
	if strings.TrimSpace(logs) == "" {
		logs = "(empty)"
	}
	if err := h.deps.Sender.SendCodeBlock(ev.ChatID, telegram.Bold("📜 OpenClash log"), logs); err != nil {
		h.deps.fail(ev, "Cannot send logs", err, tokenClashTools)
	}
}

func (h *ClashHandler) groups(ctx context.Context) ([]clash.Proxy, error) {
	proxies, err := h.deps.Clash.Proxies(ctx)
	if err != nil {
		return nil, err
	}
	return proxies.SelectorGroups(), nil
}

// group resolves a group index token against a fresh proxy listing.
func (h *ClashHandler) group(ctx context.Context, ev router.Event, arg string) (int, clash.Proxy, clash.Proxies, bool) {
	gi, err := strconv.Atoi(arg)
	if err != nil {
		return 0, clash.Proxy{}, nil, false
	}
	proxies, err := h.deps.Clash.Proxies(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read proxies", err, tokenClashGroups)
		return 0, clash.Proxy{}, nil, false
	}
	groups := proxies.SelectorGroups()
	if gi < 0 || gi >= len(groups) {
		h.deps.fail(ev, "Unknown group", errors.New("group list changed, reopen it"), tokenClashGroups)
		return 0, clash.Proxy{}, nil, false
	}
	return gi, groups[gi], proxies, true
}
