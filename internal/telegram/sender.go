package telegram

import (
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zinin/homeops-bot/internal/menu"
)

// BotAPI is the interface for Telegram bot API operations
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// MessageSender defines the interface for sending Telegram messages
type MessageSender interface {
	Send(chatID int64, text string) error
	SendPlain(chatID int64, text string) error
	SendLongPlain(chatID int64, text string) error
	SendCodeBlock(chatID int64, header, content string) error
	SendScreen(chatID int64, screen menu.Screen) error
	EditScreen(chatID int64, msgID int, screen menu.Screen) error
	AckCallback(callbackID, text string, alert bool) error
}

// Sender implements MessageSender using Telegram Bot API
type Sender struct {
	api BotAPI
}

var _ MessageSender = (*Sender)(nil)

// NewSender creates a new Sender
func NewSender(api BotAPI) *Sender {
	return &Sender{api: api}
}

// Send sends a MarkdownV2 formatted message
func (s *Sender) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	return s.send(chatID, msg)
}

// SendPlain sends a plain text message without formatting
func (s *Sender) SendPlain(chatID int64, text string) error {
	return s.send(chatID, tgbotapi.NewMessage(chatID, text))
}

// SendLongPlain sends a long plain-text message, splitting into chunks if needed.
// Chunks are cut on rune boundaries, preferably at a newline.
func (s *Sender) SendLongPlain(chatID int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageLength) {
		if err := s.SendPlain(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SplitText cuts text into pieces of at most limit runes.
func SplitText(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		size := min(len(runes), limit)
		if size < len(runes) {
			if idx := lastIndexRune(runes[:size], '\n'); idx > size/2 {
				size = idx + 1
			}
		}
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// SendCodeBlock sends a message with code block formatting
func (s *Sender) SendCodeBlock(chatID int64, header, content string) error {
	return s.Send(chatID, BuildCodeBlockMessage(header, content, MaxMessageLength))
}

// SendScreen sends a new message showing the screen
func (s *Sender) SendScreen(chatID int64, screen menu.Screen) error {
	msg := tgbotapi.NewMessage(chatID, screen.Text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if markup, ok := Markup(screen); ok {
		msg.ReplyMarkup = markup
	}
	return s.send(chatID, msg)
}

// EditScreen replaces the message msgID with the screen.
// msgID 0 sends a new message instead.
func (s *Sender) EditScreen(chatID int64, msgID int, screen menu.Screen) error {
	if msgID == 0 {
		return s.SendScreen(chatID, screen)
	}

	edit := tgbotapi.NewEditMessageText(chatID, msgID, screen.Text)
	edit.ParseMode = tgbotapi.ModeMarkdownV2
	if markup, ok := Markup(screen); ok {
		edit.ReplyMarkup = &markup
	}
	_, err := s.api.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	if err != nil {
		slog.Error("Failed to edit message", "msg_id", msgID, "error", err)
	}
	return err
}

// AckCallback answers a callback query, optionally with a toast or alert text
func (s *Sender) AckCallback(callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	cb.ShowAlert = alert
	_, err := s.api.Request(cb)
	if err != nil {
		slog.Error("Failed to acknowledge callback", "error", err)
	}
	return err
}

func (s *Sender) send(chatID int64, msg tgbotapi.MessageConfig) error {
	_, err := s.api.Send(msg)
	if err != nil {
		slog.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
	return err
}
