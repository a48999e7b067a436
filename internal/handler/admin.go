// internal/handler/admin.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

// AdminHandler manages feature grants. Only the administrator gets answers.
type AdminHandler struct {
	deps *Deps
}

func NewAdminHandler(deps *Deps) *AdminHandler {
	return &AdminHandler{deps: deps}
}

func (h *AdminHandler) Register(r *router.Router) {
	r.Command("grant", h.HandleGrant)
	r.Command("revoke", h.HandleRevoke)
	r.Command("users", h.HandleUsers)
}

// HandleGrant handles /grant <user_id> <feature>
func (h *AdminHandler) HandleGrant(ctx context.Context, ev router.Event) {
	id, feature, ok := h.parse(ev, "grant")
	if !ok {
		return
	}
	res, err := h.deps.Gate.Grant(ev.Identity, id, feature)
	if err != nil {
		h.reportError(ev, err)
		return
	}
	if res == auth.AlreadyHeld {
		h.deps.send(ev.ChatID, telegram.Escapef("ℹ️ %d already has %s.", id, feature))
		return
	}
	h.deps.send(ev.ChatID, telegram.Escapef("✅ Granted %s to %d.", feature, id))
}

// HandleRevoke handles /revoke <user_id> <feature>
func (h *AdminHandler) HandleRevoke(ctx context.Context, ev router.Event) {
	id, feature, ok := h.parse(ev, "revoke")
	if !ok {
		return
	}
	res, err := h.deps.Gate.Revoke(ev.Identity, id, feature)
	if err != nil {
		h.reportError(ev, err)
		return
	}
	if res == auth.NotHeld {
		h.deps.send(ev.ChatID, telegram.Escapef("ℹ️ %d does not have %s.", id, feature))
		return
	}
	h.deps.send(ev.ChatID, telegram.Escapef("✅ Revoked %s from %d.", feature, id))
}

// HandleUsers handles /users: lists every identity with its features
func (h *AdminHandler) HandleUsers(ctx context.Context, ev router.Event) {
	if !h.deps.Gate.IsAdmin(ev.Identity) {
		slog.Warn("Non-admin tried /users", "user_id", ev.Identity)
		return
	}
	set, err := h.deps.Gate.List(ev.Identity)
	if err != nil {
		h.reportError(ev, err)
		return
	}
	if len(set) == 0 {
		h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2("No users have been granted access."))
		return
	}

	var sb strings.Builder
	sb.WriteString(telegram.Bold("Authorized users") + "\n\n")
	for _, id := range set.IDs() {
		sb.WriteString(telegram.Code(strconv.FormatInt(id, 10)))
		sb.WriteString(telegram.EscapeMarkdownV2(": " + strings.Join(set[id], ", ")))
		sb.WriteString("\n")
	}
	h.deps.send(ev.ChatID, sb.String())
}

func (h *AdminHandler) parse(ev router.Event, verb string) (int64, string, bool) {
	if !h.deps.Gate.IsAdmin(ev.Identity) {
		slog.Warn("Non-admin tried to change permissions", "user_id", ev.Identity, "verb", verb)
		return 0, "", false
	}
	usage := telegram.EscapeMarkdownV2(fmt.Sprintf("Usage: /%s <user_id> <feature>\nFeatures: %s",
		verb, strings.Join(auth.Features, ", ")))
	if len(ev.Args) != 2 {
		h.deps.send(ev.ChatID, usage)
		return 0, "", false
	}
	id, err := strconv.ParseInt(ev.Args[0], 10, 64)
	if err != nil {
		h.deps.send(ev.ChatID, usage)
		return 0, "", false
	}
	return id, ev.Args[1], true
}

func (h *AdminHandler) reportError(ev router.Event, err error) {
	if errors.Is(err, auth.ErrUnknownFeature) {
		h.deps.send(ev.ChatID, telegram.EscapeMarkdownV2(fmt.Sprintf("Unknown feature. Available: %s",
			strings.Join(auth.Features, ", "))))
		return
	}
	slog.Error("Permission change failed", "user_id", ev.Identity, "error", err)
	h.deps.send(ev.ChatID, "❌ "+telegram.EscapeMarkdownV2(err.Error()))
}
