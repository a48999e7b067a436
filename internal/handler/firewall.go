// internal/handler/firewall.go
package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/wizard"
)

const (
	tokenFwMain        = "wrt_fw"
	tokenFwManaged     = "wrt_fw_managed"
	tokenFwAll         = "wrt_fw_all"
	tokenFwDelete      = "wrt_fw_del_"
	tokenFwDeleteOK    = "wrt_fw_delok_"
	tokenFwAdopt       = "wrt_fw_adopt_"
	tokenFwAddRedirect = "wrt_fw_add_redirect"
	tokenFwAddRule     = "wrt_fw_add_rule"

	wizardFwRedirect = "fw_redirect"
	wizardFwRule     = "fw_rule"
)

// FirewallHandler lists, creates and removes port forwards and traffic rules
type FirewallHandler struct {
	deps *Deps
}

func NewFirewallHandler(deps *Deps) *FirewallHandler {
	return &FirewallHandler{deps: deps}
}

func (h *FirewallHandler) Register(r *router.Router) {
	wrt := func(fn router.HandlerFunc) router.HandlerFunc { return r.Require(auth.FeatureWrt, fn) }

	r.Exact(tokenFwMain, wrt(h.HandleMain))
	r.Exact(tokenFwManaged, wrt(h.HandleManaged))
	r.Exact(tokenFwAll, wrt(h.HandleAll))
	r.Callback(tokenFwDelete, wrt(h.HandleDelete))
	r.Callback(tokenFwDeleteOK, wrt(h.HandleDeleteConfirm))
	r.Callback(tokenFwAdopt, wrt(h.HandleAdopt))
	r.Exact(tokenFwAddRedirect, wrt(h.startWizard(wizardFwRedirect)))
	r.Exact(tokenFwAddRule, wrt(h.startWizard(wizardFwRule)))

	h.deps.Wizards.Register(RedirectTemplate(h.deps.Firewall))
	h.deps.Wizards.Register(RuleTemplate(h.deps.Firewall))
}

// RedirectTemplate is the 5-step port forward wizard.
func RedirectTemplate(fw FirewallOps) *wizard.Template {
	return &wizard.Template{
		Kind:    wizardFwRedirect,
		Feature: auth.FeatureWrt,
		Title:   "New port forward",
		Steps: []wizard.Step{
			{Field: "name", Prompt: "Rule name (letters, digits, underscore), e.g. web", Validate: wizard.Name},
			{Field: "ext_port", Prompt: "External (WAN) port, e.g. 8080", Validate: wizard.Port},
			{Field: "int_ip", Prompt: "Internal IP address, e.g. 192.168.1.50", Validate: wizard.IPv4},
			{Field: "int_port", Prompt: "Internal port, e.g. 80", Validate: wizard.Port},
			{Field: "proto", Prompt: "Protocol", Options: []wizard.Option{
				{Label: "TCP", Value: "tcp"},
				{Label: "UDP", Value: "udp"},
				{Label: "TCP+UDP", Value: "tcp udp"},
			}},
		},
		Commit: func(ctx context.Context, c wizard.Commit) (string, error) {
			if err := fw.AddRedirect(ctx, c.Record); err != nil {
				return "", err
			}
			return fmt.Sprintf("Port forward %s created: WAN :%s → %s:%s (%s).",
				c.Record.Get("name"), c.Record.Get("ext_port"), c.Record.Get("int_ip"),
				c.Record.Get("int_port"), c.Record.Get("proto")), nil
		},
		Back: tokenFwMain,
	}
}

// RuleTemplate is the 5-step traffic rule wizard.
func RuleTemplate(fw FirewallOps) *wizard.Template {
	return &wizard.Template{
		Kind:    wizardFwRule,
		Feature: auth.FeatureWrt,
		Title:   "New traffic rule",
		Steps: []wizard.Step{
			{Field: "name", Prompt: "Rule name (letters, digits, underscore), e.g. block_iot", Validate: wizard.Name},
			{Field: "src", Prompt: "Source zone, e.g. lan", Validate: wizard.Name},
			{Field: "dest", Prompt: "Destination zone, e.g. wan", Validate: wizard.Name},
			{Field: "dest_port", Prompt: "Destination port, or - for all ports", Validate: wizard.OptionalPort},
			{Field: "target", Prompt: "Action", Options: []wizard.Option{
				{Label: "ACCEPT", Value: "ACCEPT"},
				{Label: "DROP", Value: "DROP"},
				{Label: "REJECT", Value: "REJECT"},
			}},
		},
		Commit: func(ctx context.Context, c wizard.Commit) (string, error) {
			if err := fw.AddRule(ctx, c.Record); err != nil {
				return "", err
			}
			return fmt.Sprintf("Rule %s created: %s → %s %s.",
				c.Record.Get("name"), c.Record.Get("src"), c.Record.Get("dest"), c.Record.Get("target")), nil
		},
		Back: tokenFwMain,
	}
}

func (h *FirewallHandler) startWizard(kind string) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		h.deps.startWizard(ev, kind, nil)
	}
}

// HandleMain shows the firewall menu
func (h *FirewallHandler) HandleMain(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("📋 Bot rules", tokenFwManaged).
		Button("📜 All rules", tokenFwAll).
		Row().
		Button("➕ Port forward", tokenFwAddRedirect).
		Button("➕ Traffic rule", tokenFwAddRule).
		Row().
		Back(labelBack, tokenWrtMain)
	h.deps.show(ev, b.Build(telegram.Bold("🧱 Firewall")))
}

// HandleManaged lists bot-managed sections with delete buttons
func (h *FirewallHandler) HandleManaged(ctx context.Context, ev router.Event) {
	sections, err := h.deps.Firewall.List(ctx, "", true)
	if err != nil {
		h.deps.fail(ev, "Cannot read firewall", err, tokenFwMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold("📋 Bot rules") + "\n\n")
	if len(sections) == 0 {
		sb.WriteString(telegram.EscapeMarkdownV2("No rules created by the bot yet."))
	}
	b := menu.NewBuilder()
	for _, s := range sections {
		sb.WriteString(describeSection(s) + "\n")
		if tok := tokenFwDelete + s.ID; len(tok) <= telegram.MaxCallbackData {
			b.Button("🗑 "+s.DisplayName(), tok)
		}
	}
	b.Columns(2).Back(labelBack, tokenFwMain)
	h.deps.show(ev, b.Build(sb.String()))
}

// HandleAll lists every redirect and rule, offering to adopt unmanaged ones
func (h *FirewallHandler) HandleAll(ctx context.Context, ev router.Event) {
	sections, err := h.deps.Firewall.List(ctx, "", false)
	if err != nil {
		h.deps.fail(ev, "Cannot read firewall", err, tokenFwMain)
		return
	}
	var sb strings.Builder
	sb.WriteString(telegram.Bold(fmt.Sprintf("📜 All rules (%d)", len(sections))) + "\n\n")
	b := menu.NewBuilder()
	for _, s := range sections {
		mark := "🔒 "
		if s.Managed() {
			mark = "🤖 "
		}
		sb.WriteString(telegram.EscapeMarkdownV2(mark) + describeSection(s) + "\n")
		if !s.Managed() {
			if tok := tokenFwAdopt + s.ID; len(tok) <= telegram.MaxCallbackData {
				b.Button("📥 Adopt "+s.DisplayName(), tok)
			}
		}
	}
	b.Columns(1).Back(labelBack, tokenFwMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *FirewallHandler) HandleDelete(ctx context.Context, ev router.Event) {
	b := menu.NewBuilder().
		Button("✅ Delete", tokenFwDeleteOK+ev.Arg).
		Button(labelCancel, tokenFwManaged)
	h.deps.show(ev, b.Build(telegram.EscapeMarkdownV2("Delete firewall section ")+telegram.Code(ev.Arg)+
		telegram.EscapeMarkdownV2("?")))
}

func (h *FirewallHandler) HandleDeleteConfirm(ctx context.Context, ev router.Event) {
	if err := h.deps.Firewall.Delete(ctx, ev.Arg); err != nil {
		h.deps.fail(ev, "Delete failed", err, tokenFwManaged)
		return
	}
	h.deps.done(ev, ev.Arg+" deleted.", tokenFwManaged)
}

func (h *FirewallHandler) HandleAdopt(ctx context.Context, ev router.Event) {
	id, err := h.deps.Firewall.Adopt(ctx, ev.Arg)
	if err != nil {
		h.deps.fail(ev, "Adopt failed", err, tokenFwAll)
		return
	}
	h.deps.done(ev, fmt.Sprintf("%s is now managed as %s.", ev.Arg, id), tokenFwAll)
}

func describeSection(s service.Section) string {
	o := s.Options
	var detail string
	switch s.Type {
	case "redirect":
		detail = fmt.Sprintf("%s :%s → %s:%s %s", s.DisplayName(), orAny(o["src_dport"]),
			orAny(o["dest_ip"]), orAny(o["dest_port"]), o["proto"])
	default:
		detail = fmt.Sprintf("%s %s → %s port %s %s", s.DisplayName(), orAny(o["src"]),
			orAny(o["dest"]), orAny(o["dest_port"]), o["target"])
	}
	return telegram.EscapeMarkdownV2("• " + strings.TrimSpace(detail))
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
