// internal/handler/mail.go
package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/menu"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

const (
	tokenMailMain    = "mail_main"
	tokenMailNew     = "mail_new"
	tokenMailRefresh = "mail_refresh"
	tokenMailRead    = "mail_read_"

	maxInboxButtons = 10
)

// MailHandler serves the disposable mailbox
type MailHandler struct {
	deps *Deps
}

func NewMailHandler(deps *Deps) *MailHandler {
	return &MailHandler{deps: deps}
}

func (h *MailHandler) Register(r *router.Router) {
	mail := func(fn router.HandlerFunc) router.HandlerFunc {
		return r.Require(auth.FeatureMail, h.configured(fn))
	}

	r.Command("mail", mail(h.HandleMain))
	r.Exact(tokenMailMain, mail(h.HandleMain))
	r.Exact(tokenMailNew, mail(h.HandleNew))
	r.Exact(tokenMailRefresh, mail(h.HandleMain))
	r.Callback(tokenMailRead, mail(h.HandleRead))
}

func (h *MailHandler) configured(fn router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, ev router.Event) {
		if h.deps.available(ev, h.deps.Mail != nil, "Temporary mail") {
			fn(ctx, ev)
		}
	}
}

// HandleMain shows the current mailbox and its inbox
func (h *MailHandler) HandleMain(ctx context.Context, ev router.Event) {
	address := h.deps.Sessions.Mailbox(ev.Identity)
	if address == "" {
		b := menu.NewBuilder().Button("✉️ Create mailbox", tokenMailNew).Row().Back(labelMainMenu, tokenMain)
		h.deps.show(ev, b.Build(telegram.Bold("📬 Temporary mail")+"\n\n"+
			telegram.EscapeMarkdownV2("No mailbox yet.")))
		return
	}

	msgs, err := h.deps.Mail.Inbox(ctx, address)
	if err != nil {
		h.deps.fail(ev, "Cannot read inbox", err, tokenMain)
		return
	}

	var sb strings.Builder
	sb.WriteString(telegram.Bold("📬 Temporary mail") + "\n\n")
	sb.WriteString(telegram.EscapeMarkdownV2("Address: ") + telegram.Code(address) + "\n\n")
	if len(msgs) == 0 {
		sb.WriteString(telegram.EscapeMarkdownV2("Inbox is empty."))
	}
	b := menu.NewBuilder()
	for i, m := range msgs {
		if i == maxInboxButtons {
			sb.WriteString(telegram.Escapef("… and %d older\n", len(msgs)-maxInboxButtons))
			break
		}
		sb.WriteString(telegram.Escapef("• %s: %s\n", m.From, m.Subject))
		subject := m.Subject
		if strings.TrimSpace(subject) == "" {
			subject = "(no subject)"
		}
		b.Button(truncate(subject, 30), tokenMailRead+strconv.Itoa(m.ID))
	}
	b.Columns(1).
		Button("🔄 Refresh", tokenMailRefresh).
		Button("♻️ New address", tokenMailNew).
		Row().
		Back(labelMainMenu, tokenMain)
	h.deps.show(ev, b.Build(sb.String()))
}

func (h *MailHandler) HandleNew(ctx context.Context, ev router.Event) {
	address, err := h.deps.Mail.Generate(ctx)
	if err != nil {
		h.deps.fail(ev, "Cannot create mailbox", err, tokenMain)
		return
	}
	h.deps.Sessions.SetMailbox(ev.Identity, address)
	h.HandleMain(ctx, ev)
}

// HandleRead sends one message as plain text
func (h *MailHandler) HandleRead(ctx context.Context, ev router.Event) {
	address := h.deps.Sessions.Mailbox(ev.Identity)
	id, err := strconv.Atoi(ev.Arg)
	if address == "" || err != nil {
		h.HandleMain(ctx, ev)
		return
	}
	msg, err := h.deps.Mail.Read(ctx, address, id)
	if err != nil {
		h.deps.fail(ev, "Cannot read message", err, tokenMailMain)
		return
	}
	text := fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s", msg.From, msg.Subject, msg.Date, msg.Body())
	if err := h.deps.Sender.SendLongPlain(ev.ChatID, text); err != nil {
		h.deps.fail(ev, "Cannot send message", err, tokenMailMain)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
