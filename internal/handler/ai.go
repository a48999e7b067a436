// internal/handler/ai.go
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/service"
	"github.com/zinin/homeops-bot/internal/session"
	"github.com/zinin/homeops-bot/internal/telegram"
)

const (
	tokenAIMain         = "ai_main"
	tokenAIToggle       = "ai_toggle"
	tokenAIClear        = "ai_clear"
	tokenAIAnalyzeWrt   = "ai_analyze_wrt"
	tokenAIAnalyzeClash = "ai_analyze_clash"

	assistantPreamble = "You are a concise assistant for a home network administrator. " +
		"The network runs OpenWrt with OpenClash (mihomo) and AdGuard Home. " +
		"Answer in plain text without Markdown."

	diagnosisRequest = "Diagnose the following %s log. List the problems you see, their likely cause, " +
		"and the commands or settings that would fix them. Say so plainly if everything looks healthy."
)

// AIHandler serves AI mode and log diagnosis
type AIHandler struct {
	deps *Deps
}

func NewAIHandler(deps *Deps) *AIHandler {
	return &AIHandler{deps: deps}
}

func (h *AIHandler) Register(r *router.Router) {
	ai := func(fn router.HandlerFunc) router.HandlerFunc { return r.Require(auth.FeatureAI, fn) }

	r.Command("ai", ai(h.HandleMain))
	r.Exact(tokenAIMain, ai(h.HandleMain))
	r.Exact(tokenAIToggle, ai(h.HandleToggle))
	r.Exact(tokenAIClear, ai(h.HandleClear))
	r.Exact(tokenAIAnalyzeWrt, ai(r.Require(auth.FeatureWrt, h.analyze(session.LogRouter))))
	r.Exact(tokenAIAnalyzeClash, ai(r.Require(auth.FeatureClash, h.analyze(session.LogClash))))
}

// HandleMain shows AI mode state
func (h *AIHandler) HandleMain(ctx context.Context, ev router.Event) {
	if !h.deps.available(ev, h.deps.AI != nil, "AI assistant") {
		return
	}
	h.deps.show(ev, h.screen(ev.Identity))
}

func (h *AIHandler) screen(id int64) menu.Screen {
	on := h.deps.Sessions.AIMode(id)
	text := telegram.Bold("🤖 AI assistant") + "\n\n"
	toggle := "▶️ Turn on"
	if on {
		toggle = "⏹ Turn off"
		text += telegram.EscapeMarkdownV2("AI mode is on: send any message to ask.")
		if src := h.deps.Sessions.LogContext(id); src != session.LogNone {
			text += "\n" + telegram.Escapef("Follow-ups include fresh %s logs.", logLabel(src))
		}
	} else {
		text += telegram.EscapeMarkdownV2("AI mode is off.")
	}
	b := menu.NewBuilder().
		Button(toggle, tokenAIToggle).
		Button("🧹 Clear history", tokenAIClear).
		Row()
	if h.deps.Gate.HasFeature(id, auth.FeatureWrt) {
		b.Button("📡 Analyze router log", tokenAIAnalyzeWrt)
	}
	if h.deps.Gate.HasFeature(id, auth.FeatureClash) {
		b.Button("🐱 Analyze OpenClash log", tokenAIAnalyzeClash)
	}
	return b.Columns(1).Back(labelMainMenu, tokenMain).Build(text)
}

func (h *AIHandler) HandleToggle(ctx context.Context, ev router.Event) {
	h.deps.Sessions.SetAIMode(ev.Identity, !h.deps.Sessions.AIMode(ev.Identity))
	h.deps.show(ev, h.screen(ev.Identity))
}

// HandleClear forgets the conversation while keeping AI mode as it is
func (h *AIHandler) HandleClear(ctx context.Context, ev router.Event) {
	on := h.deps.Sessions.AIMode(ev.Identity)
	h.deps.Sessions.SetAIMode(ev.Identity, false)
	h.deps.Sessions.SetAIMode(ev.Identity, on)
	h.deps.show(ev, h.screen(ev.Identity))
}

// Chat answers a free-text question in AI mode.
func (h *AIHandler) Chat(ctx context.Context, ev router.Event) {
	if h.deps.AI == nil {
		h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("AI assistant is not configured."))
		return
	}

	var logs string
	src := h.deps.Sessions.LogContext(ev.Identity)
	if src != session.LogNone && !h.deps.Gate.HasFeature(ev.Identity, logFeature(src)) {
		slog.Info("Dropping AI log context after revoke", "user_id", ev.Identity, "source", src)
		h.deps.Sessions.SetLogContext(ev.Identity, session.LogNone)
		src = session.LogNone
	}
	if src != session.LogNone {
		var err error
		if logs, err = h.fetchLogs(ctx, src); err != nil {
			slog.Warn("Failed to refresh AI log context", "source", src, "error", err)
		}
	}

	prompt := BuildPrompt(h.deps.Sessions.AIHistory(ev.Identity), src, logs, ev.Text)
	answer, err := h.deps.AI.Generate(ctx, prompt)
	if err != nil {
		slog.Error("AI request failed", "user_id", ev.Identity, "error", err)
		h.deps.send(ev.ChatID, "❌ "+telegram.EscapeMarkdownV2("AI request failed: "+err.Error()))
		return
	}

	h.deps.Sessions.AppendAIHistory(ev.Identity, session.Turn{Role: "user", Text: ev.Text})
	h.deps.Sessions.AppendAIHistory(ev.Identity, session.Turn{Role: "model", Text: answer})
	if err := h.deps.Sender.SendLongPlain(ev.ChatID, answer); err != nil {
		slog.Warn("Failed to send AI answer", "chat_id", ev.ChatID, "error", err)
	}
}

// analyze fetches logs, asks for a diagnosis and switches the user into AI mode with that log context.
func (h *AIHandler) analyze(src session.LogSource) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		if !h.deps.available(ev, h.deps.AI != nil, "AI assistant") {
			return
		}
		back := tokenWrtMain
		if src == session.LogClash {
			back = tokenClashMain
		}

		logs, err := h.fetchLogs(ctx, src)
		if err != nil {
			h.deps.fail(ev, "Cannot read logs", err, back)
			return
		}
		h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("⏳ Analyzing "+logLabel(src)+" log…"))

		question := fmt.Sprintf(diagnosisRequest, logLabel(src))
		answer, err := h.deps.AI.Generate(ctx, BuildPrompt(nil, src, logs, question))
		if err != nil {
			h.deps.fail(ev, "AI request failed", err, back)
			return
		}

		h.deps.Sessions.SetAIMode(ev.Identity, true)
		h.deps.Sessions.SetLogContext(ev.Identity, src)
		h.deps.Sessions.AppendAIHistory(ev.Identity, session.Turn{Role: "user", Text: question})
		h.deps.Sessions.AppendAIHistory(ev.Identity, session.Turn{Role: "model", Text: answer})

		if err := h.deps.Sender.SendLongPlain(ev.ChatID, answer); err != nil {
			slog.Warn("Failed to send AI answer", "chat_id", ev.ChatID, "error", err)
		}
		h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("AI mode is on. Ask follow-up questions, or use /ai to turn it off."))
	}
}

func (h *AIHandler) fetchLogs(ctx context.Context, src session.LogSource) (string, error) {
	switch src {
	case session.LogRouter:
		return h.deps.Logs.Router(ctx, service.DefaultLogLines)
	case session.LogClash:
		return h.deps.Logs.Clash(ctx, service.DefaultLogLines)
	}
	return "", nil
}

// BuildPrompt assembles the model input from the conversation so far, optional logs and the new question.
func BuildPrompt(history []session.Turn, src session.LogSource, logs, question string) string {
	var sb strings.Builder
	sb.WriteString(assistantPreamble)
	sb.WriteString("\n\n")
	if strings.TrimSpace(logs) != "" {
		fmt.Fprintf(&sb, "Current %s log:\n%s\n\n", logLabel(src), strings.TrimSpace(logs))
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("user: ")
	sb.WriteString(question)
	return sb.String()
}

// logFeature is the feature that guards reading logs from src.
func logFeature(src session.LogSource) string {
	if src == session.LogClash {
		return auth.FeatureClash
	}
	return auth.FeatureWrt
}

func logLabel(src session.LogSource) string {
	switch src {
	case session.LogRouter:
		return "router system"
	case session.LogClash:
		return "OpenClash"
	}
	return string(src)
}
