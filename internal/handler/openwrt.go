// internal/handler/openwrt.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/wizard"
)

const (
	tokenWrtMain          = "wrt_main"
	tokenWrtStatus        = "wrt_status"
	tokenWrtDevices       = "wrt_devices"
	tokenWrtIP            = "wrt_ip"
	tokenWrtServices      = "wrt_services"
	tokenWrtRestart       = "wrt_restart_"
	tokenWrtDropCaches    = "wrt_drop_caches"
	tokenWrtReboot        = "wrt_reboot"
	tokenWrtRebootConfirm = "wrt_reboot_confirm"
	tokenWrtLogs          = "wrt_logs"
	tokenWrtNet           = "wrt_net"
	tokenWrtNetQuick      = "wrt_net_quick"
	tokenWrtNetTool       = "wrt_net_tool_"
	tokenWrtScripts       = "wrt_scripts"
	tokenWrtRunScript     = "wrt_run_"

	wizardNetTool = "net_tool"
	wizardNetCurl = "net_curl"

	routerLogLines = 100
)

// OpenWrtHandler serves the router menu
type OpenWrtHandler struct {
	deps *Deps
}

func NewOpenWrtHandler(deps *Deps) *OpenWrtHandler {
	return &OpenWrtHandler{deps: deps}
}

func (h *OpenWrtHandler) Register(r *router.Router) {
	wrt := func(fn router.HandlerFunc) router.HandlerFunc { return r.Require(auth.FeatureWrt, fn) }

	r.Command("wrt", wrt(h.HandleMain))
	r.Exact(tokenWrtMain, wrt(h.HandleMain))
	r.Exact(tokenWrtStatus, wrt(h.HandleStatus))
	r.Exact(tokenWrtDevices, wrt(h.HandleDevices))
	r.Exact(tokenWrtIP, wrt(h.HandleIP))
	r.Exact(tokenWrtServices, wrt(h.HandleServices))
	r.Callback(tokenWrtRestart, wrt(h.HandleRestart))
	r.Exact(tokenWrtDropCaches, wrt(h.HandleDropCaches))
	r.Exact(tokenWrtReboot, wrt(h.HandleReboot))
	r.Exact(tokenWrtRebootConfirm, wrt(h.HandleRebootConfirm))
	r.Exact(tokenWrtLogs, wrt(h.HandleLogs))
	r.Exact(tokenWrtNet, wrt(h.HandleNet))
	r.Exact(tokenWrtNetQuick, wrt(h.HandleNetQuick))
	r.Callback(tokenWrtNetTool, wrt(h.HandleNetTool))
	r.Exact(tokenWrtScripts, wrt(h.HandleScripts))
	r.Callback(tokenWrtRunScript, wrt(h.HandleRunScript))

	h.deps.Wizards.Register(&wizard.Template{
		Kind:    wizardNetTool,
		Feature: auth.FeatureWrt,
		Title:   "Network tool",
		Steps: []wizard.Step{
			{Field: "target", Prompt: "Send a host name or IP address.", Validate: wizard.NetTarget},
		},
		Commit: h.commitNetTool,
		Back:   tokenWrtNet,
	})
	h.deps.Wizards.Register(&wizard.Template{
		Kind:    wizardNetCurl,
		Feature: auth.FeatureWrt,
		Title:   "HTTP check",
		Steps: []wizard.Step{
			{Field: "target", Prompt: "Send a URL, host name or IP address.", Validate: wizard.HTTPTarget},
		},
		Commit: h.commitNetTool,
		Back:   tokenWrtNet,
	})
}

// HandleMain shows the router menu
func (h *OpenWrtHandler) HandleMain(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("📊 Status", tokenWrtStatus).
		Button("💻 Devices", tokenWrtDevices).
		Button("🌐 Public IP", tokenWrtIP).
		Button("🛠 Network tools", tokenWrtNet).
		Button("🧱 Firewall", tokenFwMain).
		Button("🛡 AdGuard Home", tokenAdgMain).
		Button("⚙️ Services", tokenWrtServices).
		Button("📜 Logs", tokenWrtLogs).
		Button("▶️ Scripts", tokenWrtScripts).
		Columns(2)
	if h.deps.Gate.HasFeature(ev.Identity, auth.FeatureAI) {
		b.Button("🤖 AI log analysis", tokenAIAnalyzeWrt).Row()
	}
	b.Back(labelMainMenu, tokenMain)
	h.deps.show(ev, b.Build(telegram.Bold("📡 OpenWrt")))
}

// HandleStatus shows uptime, load, memory and temperature
func (h *OpenWrtHandler) HandleStatus(ctx context.Context, ev router.Event) {
	st, err := h.deps.System.Status(ctx)
	if err != nil {
		h.deps.fail(ev, "Status unavailable", err, tokenWrtMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold("📊 Router status") + "\n\n")
	sb.WriteString(telegram.Escapef("⏱ Uptime: %s\n", st.Uptime))
	sb.WriteString(telegram.Escapef("📈 Load: %s\n", st.Load))
	if st.MemTotalMB > 0 {
		sb.WriteString(telegram.Escapef("🧠 Memory: %d / %d MB (%d%%)\n",
			st.MemUsedMB, st.MemTotalMB, st.MemUsedMB*100/st.MemTotalMB))
	}
	if st.TemperatureC > 0 {
		sb.WriteString(telegram.Escapef("🌡 Temperature: %.1f °C\n", st.TemperatureC))
	}
	b := menu.NewBuilder().Button("🔄 Refresh", tokenWrtStatus).Row().Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleDevices lists DHCP leases
func (h *OpenWrtHandler) HandleDevices(ctx context.Context, ev router.Event) {
	leases, err := h.deps.System.Leases(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot read leases", err, tokenWrtMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold(fmt.Sprintf("💻 Devices (%d)", len(leases))) + "\n\n")
	if len(leases) == 0 {
		sb.WriteString(telegram.EscapeMarkdownV2("No active leases."))
	}
	for _, l := range leases {
		name := l.Hostname
		if name == "" {
			name = "unknown"
		}
		sb.WriteString(telegram.EscapeMarkdownV2("• "+name+" ") + telegram.Code(l.IP) + "\n")
		sb.WriteString(telegram.EscapeMarkdownV2("   ") + telegram.Code(l.MAC) + "\n")
	}
	b := menu.NewBuilder().Button("🔄 Refresh", tokenWrtDevices).Row().Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleIP shows the public addresses
func (h *OpenWrtHandler) HandleIP(ctx context.Context, ev router.Event) {
	ips, err := h.deps.Network.PublicIPs(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot determine public IP", err, tokenWrtMain)
		return
	}
	text := telegram.Bold("🌐 Public IP") + "\n\n" +
		telegram.EscapeMarkdownV2("IPv4: ") + telegram.Code(orUnknown(ips.V4)) + "\n" +
		telegram.EscapeMarkdownV2("IPv6: ") + telegram.Code(orUnknown(ips.V6))
	h.deps.show(ev, menu.NewBuilder().Back(labelBack, tokenWrtMain).Build(text))
}

// HandleServices shows restart buttons and maintenance actions
func (h *OpenWrtHandler) HandleServices(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder()
	for _, svc := range service.RestartableServices {
		b.Button("🔄 "+svc, tokenWrtRestart+svc)
	}
	b.Columns(2).
		Button("🧹 Drop caches", tokenWrtDropCaches).
		Button("⚠️ Reboot", tokenWrtReboot).
		Row().
		Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(telegram.Bold("⚙️ Services")))
}

func (h *OpenWrtHandler) HandleRestart(ctx context.Context, ev router.Event) {
	if err := h.deps.System.RestartService(ctx, ev.Arg); err != nil {
		h.deps.fail(ev, "Restart "+ev.Arg+" failed", err, tokenWrtServices)
		return
	}
	h.deps.done(ev, ev.Arg+" restarted.", tokenWrtServices)
}

func (h *OpenWrtHandler) HandleDropCaches(ctx context.Context, ev router.Event) {
	if err := h.deps.System.DropCaches(ctx); err != nil {
		h.deps.fail(ev, "Drop caches failed", err, tokenWrtServices)
		return
	}
	h.deps.done(ev, "Page cache dropped.", tokenWrtServices)
}

// HandleReboot asks for confirmation
func (h *OpenWrtHandler) HandleReboot(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("✅ Yes, reboot", tokenWrtRebootConfirm).
		Button(labelCancel, tokenWrtServices)
	h.deps.show(ev, b.Build(telegram.Bold("⚠️ Reboot the router?")+"\n"+
		telegram.EscapeMarkdownV2("The network will be down for about a minute.")))
}

func (h *OpenWrtHandler) HandleRebootConfirm(ctx context.Context, ev router.Event) {
	if err := h.deps.System.Reboot(ctx); err != nil {
		h.deps.fail(ev, "Reboot failed", err, tokenWrtServices)
		return
	}
	h.deps.done(ev, "Reboot command sent.", tokenWrtMain)
}

// HandleLogs sends the tail of the system log
func (h *OpenWrtHandler) HandleLogs(ctx context.Context, ev router.Event) {
	logs, err := h.deps.Logs.Router(ctx, routerLogLines)
	if err != nil {
		h.deps.fail(ev, "Cannot read logs", err, tokenWrtMain)
		return
	}
	if strings.TrimSpace(logs) == "" {
		logs = "(empty)"
	}
	if err := h.deps.Sender.SendCodeBlock(ev.ChatID, telegram.Bold("📜 System log"), logs); err != nil {
		h.deps.fail(ev, "Cannot send logs", err, tokenWrtMain)
	}
}

// HandleNet shows the diagnostics menu
func (h *OpenWrtHandler) HandleNet(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("⚡ Quick check", tokenWrtNetQuick).
		Row()
	for _, tool := range service.NetTools {
		b.Button(toolLabel(tool), tokenWrtNetTool+string(tool))
	}
	b.Columns(2).Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(telegram.Bold("🛠 Network tools")))
}

func (h *OpenWrtHandler) HandleNetQuick(ctx context.Context, ev router.Event) {
	out, err := h.deps.Network.QuickCheck(ctx)
	if err != nil {
		h.deps.fail(ev, "Quick check failed", err, tokenWrtNet)
		return
	}
	if err := h.deps.Sender.SendCodeBlock(ev.ChatID, telegram.Bold("⚡ Quick check"), out); err != nil {
		h.deps.fail(ev, "Cannot send result", err, tokenWrtNet)
	}
}

// HandleNetTool asks for the target of a tool
func (h *OpenWrtHandler) HandleNetTool(ctx context.Context, ev router.Event) {
	tool := service.NetTool(ev.Arg)
	if _, err := service.ToolScript(tool, "x"); err != nil {
		h.deps.fail(ev, "Unknown tool", err, tokenWrtNet)
		return
	}
	kind := wizardNetTool
	if tool == service.ToolCurl {
		kind = wizardNetCurl
	}
	h.deps.startWizard(ev, kind, map[string]string{"tool": string(tool)})
}

func (h *OpenWrtHandler) commitNetTool(ctx context.Context, c wizard.Commit) (string, error) {
	tool := service.NetTool(c.Params["tool"])
	target := c.Record.Get("target")
	out, err := h.deps.Network.Run(ctx, tool, target)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	header := telegram.Bold(toolLabel(tool)) + " " + telegram.Code(target)
	if err := h.deps.Sender.SendCodeBlock(c.ChatID, header, out); err != nil {
		return "", err
	}
	return string(tool) + " finished.", nil
}

// HandleScripts lists the scripts that can be run on the router
func (h *OpenWrtHandler) HandleScripts(ctx context.Context, ev router.Event) {
	scripts, err := h.deps.System.Scripts(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot list scripts", err, tokenWrtMain)
		return
	}
	text := telegram.Bold("▶️ Scripts") + "\n\n"
	if len(scripts) == 0 {
		text += telegram.EscapeMarkdownV2("No scripts found.")
	} else {
		text += telegram.EscapeMarkdownV2("Tap a script to run it now.")
	}
	b := menu.NewBuilder()
	for i, s := range scripts {
		b.Button("▶️ "+path.Base(s), tokenWrtRunScript+strconv.Itoa(i)).Row()
	}
	b.Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(text))
}

// HandleRunScript runs the script at the given index of the current listing
func (h *OpenWrtHandler) HandleRunScript(ctx context.Context, ev router.Event) {
	i, err := strconv.Atoi(ev.Arg)
	if err != nil || i < 0 {
		h.deps.fail(ev, "Bad script", fmt.Errorf("invalid index %q", ev.Arg), tokenWrtScripts)
		return
	}
	scripts, err := h.deps.System.Scripts(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot list scripts", err, tokenWrtScripts)
		return
	}
	if i >= len(scripts) {
		h.deps.fail(ev, "Bad script", errors.New("the script list has changed, open it again"), tokenWrtScripts)
		return
	}

	script := scripts[i]
	name := path.Base(script)
	h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("⏳ Running "+name+"…"))

	out, err := h.deps.System.RunScript(ctx, script)
	if strings.TrimSpace(out) != "" {
		if sendErr := h.deps.Sender.SendCodeBlock(ev.ChatID, telegram.Bold("📝 "+name), out); sendErr != nil {
			slog.Warn("Failed to send script output", "script", script, "error", sendErr)
		}
	}
	var cmdErr *service.CommandError
	if errors.As(err, &cmdErr) {
		h.deps.fail(ev, name+" failed", fmt.Errorf("exit status %d", cmdErr.ExitCode), tokenWrtScripts)
		return
	}
	if err != nil {
		h.deps.fail(ev, name+" failed", err, tokenWrtScripts)
		return
	}
	if strings.TrimSpace(out) == "" {
		h.deps.done(ev, name+" finished with no output.", tokenWrtScripts)
		return
	}
	h.deps.done(ev, name+" finished.", tokenWrtScripts)
}

func toolLabel(t service.NetTool) string {
	switch t {
	case service.ToolPing:
		return "📶 Ping"
	case service.ToolTraceroute:
		return "🗺 Traceroute"
	case service.ToolNslookup:
		return "🔎 NSLookup"
	case service.ToolCurl:
		return "🌍 HTTP check"
	}
	return string(t)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
