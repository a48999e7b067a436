// Package telegram adapts menus and messages to the Telegram Bot API
package telegram

import (
	"fmt"
	"strings"
)

// MaxMessageLength is the maximum length for a Telegram message
const MaxMessageLength = 4000

var markdownV2Replacer = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// inside code and pre entities only ` and \ need escaping
var codeReplacer = strings.NewReplacer("\\", "\\\\", "`", "\\`")

// EscapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func EscapeMarkdownV2(text string) string {
	return markdownV2Replacer.Replace(text)
}

// Escapef formats like fmt.Sprintf and escapes the result as plain text.
func Escapef(format string, args ...any) string {
	return EscapeMarkdownV2(fmt.Sprintf(format, args...))
}

// Bold renders escaped bold text
func Bold(text string) string {
	return "*" + EscapeMarkdownV2(text) + "*"
}

// Code renders inline code
func Code(text string) string {
	return "`" + codeReplacer.Replace(text) + "`"
}

// CodeBlock wraps content in Telegram code block
func CodeBlock(content string) string {
	return fmt.Sprintf("```\n%s```", codeReplacer.Replace(content))
}

// BuildCodeBlockMessage builds a code block message, keeping the tail of content
// when it does not fit. header must already be MarkdownV2.
func BuildCodeBlockMessage(header, content string, maxLen int) string {
	maxContentLen := maxLen - len(header) - 10

	if len(content) > maxContentLen {
		content = content[len(content)-maxContentLen:]
		if idx := strings.Index(content, "\n"); idx != -1 {
			content = content[idx+1:]
		}
		content = "...\n" + content
	}

	return fmt.Sprintf("%s\n```\n%s```", header, codeReplacer.Replace(content))
}
