package ws

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the chat message cap in runes
const MaxMessageLength = 300

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeMessage applies the chat rules: messages longer than the cap or
// consisting only of whitespace are rejected, and internal whitespace runs
// collapse to single spaces. ok is false when the message must be dropped.
func NormalizeMessage(raw string) (normalized string, ok bool) {
	if utf8.RuneCountInString(raw) > MaxMessageLength {
		return "", false
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	return whitespaceRun.ReplaceAllString(trimmed, " "), true
}
