package host

import (
	"strings"
	"unicode"
)

const (
	maxUserNameLen      = 32
	maxRoomNameLen      = 64
	maxChatMessageLen   = 2000
	maxClipboardTextLen = 4000
	maxInviteMessageLen = 280
)

// sanitizePlainText normalizes line endings, strips control, format,
// surrogate, private-use and non-character runes, and caps the rune
// length. The empty result signals a rejected input to callers.
func sanitizePlainText(input string, maxLen int) string {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cs, r) || unicode.Is(unicode.Co, r) {
			return -1
		}
		if r >= 0xFDD0 && r <= 0xFDEF {
			return -1
		}
		if r&0xFFFE == 0xFFFE {
			return -1
		}
		return r
	}, s)

	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func sanitizeUserName(name string) string {
	return sanitizePlainText(name, maxUserNameLen)
}

func sanitizeRoomName(name string) string {
	return sanitizePlainText(name, maxRoomNameLen)
}

func sanitizeChatMessage(msg string) string {
	return sanitizePlainText(msg, maxChatMessageLen)
}

func sanitizeInviteMessage(msg string) string {
	return sanitizePlainText(msg, maxInviteMessageLen)
}

func sanitizeClipboardText(text string) string {
	return sanitizePlainText(text, maxClipboardTextLen)
}
