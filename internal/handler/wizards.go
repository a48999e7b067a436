// internal/handler/wizards.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
	"github.com/zinin/homeops-bot/internal/wizard"
)

const (
	tokenWizardPick   = "wiz_pick_"
	tokenWizardCancel = "wiz_cancel"
)

// WizardHandler feeds replies and selections to the wizard engine and
// routes free text that no wizard is waiting for.
type WizardHandler struct {
	deps *Deps
	ai   *AIHandler
}

func NewWizardHandler(deps *Deps, ai *AIHandler) *WizardHandler {
	return &WizardHandler{deps: deps, ai: ai}
}

func (h *WizardHandler) Register(r *router.Router) {
	r.Callback(tokenWizardPick, h.HandlePick)
	r.Exact(tokenWizardCancel, h.HandleCancel)
	r.Command("cancel", h.HandleCancel)
	r.Text(h.HandleText)
}

// HandleText answers the active wizard, or chats with the AI when AI mode is on.
func (h *WizardHandler) HandleText(ctx context.Context, ev router.Event) {
	if _, ok := h.deps.Wizards.Active(ev.Identity); ok {
		if !h.allowed(ctx, ev) {
			return
		}
		out, err := h.deps.Wizards.Reply(ctx, ev.Identity, ev.ChatID, ev.Text)
		if err != nil {
			h.noWizard(ev, err)
			return
		}
		h.deps.renderOutcome(ev, out)
		return
	}

	if h.ai != nil && h.deps.Sessions.AIMode(ev.Identity) && h.deps.Gate.HasFeature(ev.Identity, auth.FeatureAI) {
		h.ai.Chat(ctx, ev)
		return
	}

	h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("Use /start to open the menu."))
}

func (h *WizardHandler) HandlePick(ctx context.Context, ev router.Event) {
	index, err := strconv.Atoi(ev.Arg)
	if err != nil {
		slog.Debug("Malformed wizard option", "token", ev.Token)
		return
	}
	if !h.allowed(ctx, ev) {
		return
	}
	out, err := h.deps.Wizards.Choose(ctx, ev.Identity, ev.ChatID, index)
	if err != nil {
		h.noWizard(ev, err)
		return
	}
	h.deps.renderOutcome(ev, out)
}

func (h *WizardHandler) HandleCancel(ctx context.Context, ev router.Event) {
	t, ok := h.deps.Wizards.Cancel(ev.Identity)
	back := tokenMain
	if ok && t != nil && t.Back != "" {
		back = t.Back
	}
	text := "Nothing to cancel."
	if ok {
		text = "Cancelled."
	}
	h.deps.show(ev, menu.NewBuilder().Back(labelBack, back).Build(telegram.EscapeMarkdownV2(text)))
}

// allowed drops the active wizard when its feature was revoked after it started.
func (h *WizardHandler) allowed(ctx context.Context, ev router.Event) bool {
	state, ok := h.deps.Wizards.Active(ev.Identity)
	if !ok {
		return true
	}
	t, ok := h.deps.Wizards.Template(state.Kind)
	if !ok || t.Feature == "" || h.deps.Gate.HasFeature(ev.Identity, t.Feature) {
		return true
	}
	slog.Warn("Wizard dropped after feature revoke", "user_id", ev.Identity, "kind", state.Kind, "feature", t.Feature)
	h.deps.Wizards.Cancel(ev.Identity)
	h.deps.denied(ctx, ev, t.Feature)
	return false
}

func (h *WizardHandler) noWizard(ev router.Event, err error) {
	if errors.Is(err, wizard.ErrNoSession) {
		h.deps.show(ev, menu.NewBuilder().Back(labelMainMenu, tokenMain).Build(
			telegram.EscapeMarkdownV2("This input has expired. Start again from the menu.")))
		return
	}
	h.deps.fail(ev, "Input failed", err, tokenMain)
}

// startWizard begins kind for the event's identity and shows its first prompt.
func (d *Deps) startWizard(ev router.Event, kind string, params map[string]string) {
	out, err := d.Wizards.Start(ev.Identity, kind, params)
	if err != nil {
		d.fail(ev, "Cannot start", err, tokenMain)
		return
	}
	d.renderOutcome(ev, out)
}

// renderOutcome shows the next prompt, a rejection, or the final result.
func (d *Deps) renderOutcome(ev router.Event, out wizard.Outcome) {
	t := out.Template
	back := tokenMain
	if t != nil && t.Back != "" {
		back = t.Back
	}

	switch out.Status {
	case wizard.Committed:
		result := out.Result
		if result == "" {
			result = "Done."
		}
		d.done(ev, result, back)
		return
	case wizard.CommitFailed:
		d.fail(ev, t.Title+" failed", out.Err, back)
		return
	}

	step, ok := out.Current()
	if !ok {
		return
	}

	text := telegram.Bold(t.Title) + "\n" +
		telegram.EscapeMarkdownV2(fmt.Sprintf("Step %d of %d", out.Step+1, len(t.Steps))) + "\n\n"
	if out.Status == wizard.Rejected {
		text += "⚠️ " + telegram.EscapeMarkdownV2(out.Reason) + "\n\n"
	}
	text += telegram.EscapeMarkdownV2(step.Prompt)

	b := menu.NewBuilder()
	for i, opt := range step.Options {
		b.Button(opt.Label, tokenWizardPick+strconv.Itoa(i))
	}
	b.Columns(3)
	b.Back(labelCancel, tokenWizardCancel)

	d.show(ev, b.Build(text))
}
