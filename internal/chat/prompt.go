package chat

import (
	"fmt"
	"strings"
)

// buildSystemPrompt layers channel formatting rules onto the chatbot's
// configured prompt. Voice channels get strict plain-text rules because
// their renderers cannot display markdown.
func buildSystemPrompt(base, channel string) string {
	var sb strings.Builder
	if strings.TrimSpace(base) != "" {
		sb.WriteString(base)
	} else {
		sb.WriteString("You are a helpful assistant.")
	}

	switch channel {
	case "alexa":
		sb.WriteString("\n\n")
		sb.WriteString("You are responding through a voice assistant. Respond in plain conversational prose only. ")
		sb.WriteString("Never use markdown, bullet points, numbered lists, code blocks, tables, or headers. ")
		sb.WriteString("Keep answers short: two or three sentences unless the user asks for detail. ")
		sb.WriteString("Spell out abbreviations the first time you use them.")
	case "sms":
		sb.WriteString("\n\n")
		sb.WriteString("You are responding over SMS. Keep answers under 300 characters when possible and avoid any markdown formatting.")
	case "slack", "discord":
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("You are responding inside %s. Use its plain formatting conventions and keep answers concise.", channelLabel(channel)))
	}
	return sb.String()
}
