// internal/handler/handler.go
package handler

import (
	"context"
	"log/slog"

	"github.com/zinin/homeops-bot/internal/adguard"
	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/clash"
	"github.com/zinin/homeops-bot/internal/gemini"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/session"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/tempmail"
	"github.com/zinin/homeops-bot/internal/wizard"
)

// SystemOps reads and controls the router.
type SystemOps interface {
	Status(ctx context.Context) (*service.SystemStatus, error)
	Leases(ctx context.Context) ([]service.Lease, error)
	RestartService(ctx context.Context, name string) error
	Reboot(ctx context.Context) error
	DropCaches(ctx context.Context) error
	Scripts(ctx context.Context) ([]string, error)
	RunScript(ctx context.Context, path string) (string, error)
}

// FirewallOps manages uci firewall sections.
type FirewallOps interface {
	List(ctx context.Context, kind string, managedOnly bool) ([]service.Section, error)
	AddRedirect(ctx context.Context, r wizard.Record) error
	AddRule(ctx context.Context, r wizard.Record) error
	Delete(ctx context.Context, id string) error
	Adopt(ctx context.Context, id string) (string, error)
}

// NetworkOps runs diagnostics from the router.
type NetworkOps interface {
	Run(ctx context.Context, tool service.NetTool, target string) (string, error)
	QuickCheck(ctx context.Context) (string, error)
	PublicIPs(ctx context.Context) (service.PublicIPs, error)
}

// LogOps collects logs for display and AI diagnosis.
type LogOps interface {
	Router(ctx context.Context, n int) (string, error)
	Clash(ctx context.Context, n int) (string, error)
}

// AdGuardOps is the AdGuard Home surface used by the menus.
type AdGuardOps interface {
	Status(ctx context.Context) (*adguard.Status, error)
	SetProtection(ctx context.Context, enabled bool) error
	Stats(ctx context.Context) (*adguard.StatsSummary, error)
	Feature(ctx context.Context, name string) (bool, error)
	SetFeature(ctx context.Context, name string, enabled bool) error
	Retention(ctx context.Context, name string) (*adguard.Retention, error)
	CycleRetention(ctx context.Context, name string) (*adguard.Retention, error)
	DNSInfo(ctx context.Context) (*adguard.DNSInfo, error)
	SetDNS(ctx context.Context, changes map[string]any) error
	Filtering(ctx context.Context) (*adguard.Filtering, error)
	AddFilter(ctx context.Context, name, url string) error
	RemoveFilter(ctx context.Context, url string) error
	ToggleRule(ctx context.Context, rule string) (bool, error)
	DHCP(ctx context.Context) (*adguard.DHCPStatus, error)
	SetDHCPEnabled(ctx context.Context, enabled bool) error
	AddStaticLease(ctx context.Context, l adguard.Lease) error
	Leases(ctx context.Context) ([]adguard.Lease, error)
	Restart(ctx context.Context) error
}

// ClashOps is the mihomo controller surface used by the menus.
type ClashOps interface {
	Config(ctx context.Context) (*clash.Config, error)
	SetMode(ctx context.Context, mode string) error
	ToggleDebug(ctx context.Context) (string, error)
	Version(ctx context.Context) (*clash.Version, error)
	Proxies(ctx context.Context) (clash.Proxies, error)
	Select(ctx context.Context, group, node string) error
	TestGroup(ctx context.Context, group clash.Proxy) []clash.DelayResult
	Connections(ctx context.Context) (*clash.ConnectionStats, error)
	CloseConnections(ctx context.Context) error
	FlushFakeIP(ctx context.Context) error
	Reload(ctx context.Context) error
}

// MailOps manages disposable mailboxes.
type MailOps interface {
	Generate(ctx context.Context) (string, error)
	Inbox(ctx context.Context, address string) ([]tempmail.Summary, error)
	Read(ctx context.Context, address string, id int) (*tempmail.Message, error)
}

var (
	_ SystemOps   = (*service.SystemService)(nil)
	_ FirewallOps = (*service.FirewallService)(nil)
	_ NetworkOps  = (*service.NetworkService)(nil)
	_ LogOps      = (*service.LogService)(nil)
	_ AdGuardOps  = (*adguard.Client)(nil)
	_ ClashOps    = (*clash.Client)(nil)
	_ MailOps     = (*tempmail.Client)(nil)
)

// Deps holds dependencies for all handlers
type Deps struct {
	Sender   telegram.MessageSender
	Gate     *auth.Gate
	Sessions *session.Store
	Wizards  *wizard.Engine

	System   SystemOps
	Firewall FirewallOps
	Network  NetworkOps
	Logs     LogOps
	AdGuard  AdGuardOps
	Clash    ClashOps
	AI       gemini.Generator
	Mail     MailOps

	DevMode bool // Development mode flag
}

// show edits the message a callback came from, or sends a new one.
func (d *Deps) show(ev router.Event, s menu.Screen) {
	var err error
	if ev.Kind == router.KindCallback {
		err = d.Sender.EditScreen(ev.ChatID, ev.MessageID, s)
	} else {
		err = d.Sender.SendScreen(ev.ChatID, s)
	}
	if err != nil {
		slog.Warn("Failed to show screen", "chat_id", ev.ChatID, "error", err)
	}
}

// fail reports a failed remote action and offers the way back.
func (d *Deps) fail(ev router.Event, what string, err error, back string) {
	slog.Warn("Action failed", "action", what, "user_id", ev.Identity, "error", err)
	text := "❌ " + telegram.EscapeMarkdownV2(what+": "+err.Error())
	d.show(ev, menu.NewBuilder().Back(labelBack, back).Build(text))
}

// done reports a finished action with a way back.
func (d *Deps) done(ev router.Event, text, back string) {
	d.show(ev, menu.NewBuilder().Back(labelBack, back).Build("✅ "+telegram.EscapeMarkdownV2(text)))
}

func (d *Deps) send(chatID int64, text string) {
	if err := d.Sender.Send(chatID, text); err != nil {
		slog.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
}

// available reports whether an optional backend is configured and tells the user when it is not.
func (d *Deps) available(ev router.Event, ok bool, name string) bool {
	if ok {
		return true
	}
	d.show(ev, menu.NewBuilder().Back(labelBack, tokenMain).Build(
		"⚠️ "+telegram.EscapeMarkdownV2(name+" is not configured")))
	return false
}
