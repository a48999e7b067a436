// internal/bot/bot.go
package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zinin/homeops-bot/internal/auth"
	"github.com/zinin/homeops-bot/internal/handler"
	"github.com/zinin/homeops-bot/internal/router"
	"github.com/zinin/homeops-bot/internal/telegram"
)

// UpdatesAPI is the part of the Telegram client the event loop needs
type UpdatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot feeds Telegram updates through the authorization gate into the router.
type Bot struct {
	api    UpdatesAPI
	gate   *auth.Gate
	router *router.Router
	sender telegram.MessageSender
}

func New(api UpdatesAPI, gate *auth.Gate, r *router.Router, sender telegram.MessageSender) *Bot {
	return &Bot{api: api, gate: gate, router: r, sender: sender}
}

// RegisterCommands registers bot commands with Telegram
func (b *Bot) RegisterCommands() error {
	commands := make([]tgbotapi.BotCommand, 0, len(handler.Commands))
	for _, c := range handler.Commands {
		commands = append(commands, tgbotapi.BotCommand{Command: c.Verb, Description: c.Description})
	}

	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return err
	}

	slog.Info("Registered bot commands", "count", len(commands))
	return nil
}

// Run processes updates one at a time until ctx is cancelled
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	slog.Info("Bot started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down bot")
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				slog.Warn("Updates channel closed, stopping bot")
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate authorizes and dispatches one update.
// Callbacks are acknowledged before anything else so the client spinner stops.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if err := b.sender.AckCallback(cb.ID, "", false); err != nil {
			slog.Debug("Failed to ack callback", "error", err)
		}
	}

	ev, ok := ToEvent(update)
	if !ok {
		return
	}

	if b.gate.Authorize(ev.Identity) != auth.Admit {
		slog.Warn("Unauthorized access attempt", "user_id", ev.Identity, "username", ev.Username, "kind", ev.Kind)
		return
	}

	switch ev.Kind {
	case router.KindCommand:
		slog.Info("Command received", "user_id", ev.Identity, "command", ev.Verb)
	case router.KindCallback:
		slog.Info("Callback received", "user_id", ev.Identity, "data", ev.Token)
	default:
		slog.Debug("Text received", "user_id", ev.Identity, "length", len(ev.Text))
	}

	if !b.router.Dispatch(ctx, ev) {
		slog.Debug("No route for event", "user_id", ev.Identity, "kind", ev.Kind)
	}
}

// ToEvent converts an update to a router event. Updates without a sender, and
// callbacks without their message, are not events.
func ToEvent(update tgbotapi.Update) (router.Event, bool) {
	if msg := update.Message; msg != nil {
		if msg.From == nil {
			return router.Event{}, false
		}
		ev := router.Event{
			Identity:  msg.From.ID,
			Username:  msg.From.UserName,
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
		}
		if msg.IsCommand() {
			ev.Kind = router.KindCommand
			ev.Verb = strings.ToLower(msg.Command())
			ev.Text = msg.CommandArguments()
			ev.Args = strings.Fields(ev.Text)
			return ev, true
		}
		if strings.TrimSpace(msg.Text) == "" {
			return router.Event{}, false
		}
		ev.Kind = router.KindText
		ev.Text = msg.Text
		return ev, true
	}

	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || cb.Message == nil {
			return router.Event{}, false
		}
		return router.Event{
			Kind:       router.KindCallback,
			Identity:   cb.From.ID,
			Username:   cb.From.UserName,
			ChatID:     cb.Message.Chat.ID,
			MessageID:  cb.Message.MessageID,
			Token:      cb.Data,
			CallbackID: cb.ID,
		}, true
	}
	return router.Event{}, false
}
