package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zinin/homeops-bot/internal/menu"
)

// MaxCallbackData is Telegram's limit on callback_data, in bytes.
const MaxCallbackData = 64

// Markup converts the screen's buttons to an inline keyboard.
// ok is false when the screen has no buttons.
func Markup(s menu.Screen) (markup tgbotapi.InlineKeyboardMarkup, ok bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range s.Rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
