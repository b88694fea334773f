package convo

import (
	"strings"

	"aiassistant/pkg/domain"
)

const (
	titleMaxWords = 6
	titleMaxRunes = 40
	ellipsis      = "..."
)

// GenerateTitle derives a sidebar title from the first user message.
//
// Line breaks and tabs become spaces and whitespace runs collapse to one
// space. The title is the first six words; when those exceed 40 characters
// the cleaned text is cut at 40 characters instead. "..." is appended
// whenever the title is shorter than the cleaned text.
func GenerateTitle(content string) string {
	words := strings.Fields(strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(content))
	if len(words) == 0 {
		return domain.DefaultConversationTitle
	}
	cleaned := strings.Join(words, " ")
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	if runes := []rune(title); len(runes) > titleMaxRunes {
		title = string([]rune(cleaned)[:titleMaxRunes])
	}
	if len([]rune(title)) < len([]rune(cleaned)) {
		title += ellipsis
	}
	return title
}

// titleFor picks the first user message of a thread, if any.
func titleFor(msgs []domain.Message) string {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			return GenerateTitle(m.Content)
		}
	}
	return domain.DefaultConversationTitle
}
