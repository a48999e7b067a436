// internal/handler/register.go
package handler

import (
	"context"
	"log/slog"

	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

// Command is a bot command advertised in the client's command menu.
type Command struct {
	Verb        string
	Description string
}

// Commands lists the advertised commands in menu order.
var Commands = []Command{
	{"start", "Main menu"},
	{"wrt", "OpenWrt router"},
	{"clash", "OpenClash"},
	{"ai", "AI assistant"},
	{"mail", "Temporary mailbox"},
	{"cancel", "Cancel current input"},
	{"id", "Show your user ID"},
	{"help", "Help"},
}

// Register wires every handler into r.
func Register(r *router.Router, deps *Deps) {
	ai := NewAIHandler(deps)

	NewStartHandler(deps).Register(r)
	NewAdminHandler(deps).Register(r)
	NewOpenWrtHandler(deps).Register(r)
	NewFirewallHandler(deps).Register(r)
	NewAdGuardHandler(deps).Register(r)
	NewClashHandler(deps).Register(r)
	ai.Register(r)
	NewMailHandler(deps).Register(r)
	NewWizardHandler(deps, ai).Register(r)

	r.OnDenied(deps.denied)
}

// denied tells a known user that a section is not enabled for them.
func (d *Deps) denied(ctx context.Context, ev router.Event, feature string) {
	text := "⛔ " + telegram.EscapeMarkdownV2("You do not have access to this section ("+feature+").")
	if ev.Kind == router.KindCallback {
		d.show(ev, menu.NewBuilder().Back(labelMainMenu, tokenMain).Build(text))
		return
	}
	if err := d.Sender.Send(ev.ChatID, text); err != nil {
		slog.Warn("Failed to send message", "chat_id", ev.ChatID, "error", err)
	}
}
