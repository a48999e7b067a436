// internal/handler/start.go
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

const tokenMain = "start_main"

const (
	labelBack     = "🔙 Back"
	labelMainMenu = "🏠 Main menu"
	labelCancel   = "❌ Cancel"
)

// StartHandler shows the main menu and identity info
type StartHandler struct {
	deps *Deps
	now  func() time.Time
}

func NewStartHandler(deps *Deps) *StartHandler {
	return &StartHandler{deps: deps, now: time.Now}
}

func (h *StartHandler) Register(r *router.Router) {
	r.Command("start", h.HandleStart)
	r.Command("help", h.HandleStart)
	r.Exact(tokenMain, h.HandleStart)
	r.Command("id", h.HandleID)
	r.Command("info", h.HandleID)
}

// HandleStart shows the main menu with the sections the caller may use
func (h *StartHandler) HandleStart(ctx context.Context, ev router.Event) {
	name := ev.Username
	if name == "" {
		name = fmt.Sprint(ev.Identity)
	}
	text := telegram.Bold(greeting(h.now().Hour())+", "+name) + "\n\n" +
		telegram.EscapeMarkdownV2("HomeOps control panel. Pick a section:")

	gate := h.deps.Gate
	b := menu.NewBuilder()
	if gate.HasFeature(ev.Identity, auth.FeatureWrt) {
		b.Button("📡 OpenWrt", tokenWrtMain)
	}
	if gate.HasFeature(ev.Identity, auth.FeatureClash) {
		b.Button("🚀 OpenClash", tokenClashMain)
	}
	if gate.HasFeature(ev.Identity, auth.FeatureAI) {
		b.Button("🤖 AI assistant", tokenAIMain)
	}
	if gate.HasFeature(ev.Identity, auth.FeatureMail) {
		b.Button("📧 Temp mail", tokenMailMain)
	}
	b.Columns(2)
	if len(b.Build("").Rows) == 0 {
		text += "\n\n" + telegram.EscapeMarkdownV2("No sections are enabled for you yet. Send /id to the administrator.")
	}
	if h.deps.DevMode {
		text += "\n\n" + telegram.EscapeMarkdownV2("[DEV MODE] router commands are simulated")
	}
	h.deps.show(ev, b.Build(text))
}

// HandleID handles /id: shows who the bot thinks the caller is
func (h *StartHandler) HandleID(ctx context.Context, ev router.Event) {
	role := "user"
	if h.deps.Gate.IsAdmin(ev.Identity) {
		role = "administrator"
	}
	text := telegram.Bold("Your identity") + "\n" +
		telegram.EscapeMarkdownV2("User ID: ") + telegram.Code(fmt.Sprint(ev.Identity)) + "\n" +
		telegram.EscapeMarkdownV2("Chat ID: ") + telegram.Code(fmt.Sprint(ev.ChatID)) + "\n" +
		telegram.EscapeMarkdownV2("Role: "+role)
	h.deps.send(ev.ChatID, text)
}

func greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 18:
		return "Good afternoon"
	case hour >= 18 && hour < 23:
		return "Good evening"
	}
	return "Good night"
}
