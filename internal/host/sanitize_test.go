package host

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"plain", "hello", 100, "hello"},
		{"trims whitespace", "  hi  ", 100, "hi"},
		{"crlf to lf", "a\r\nb\rc", 100, "a\nb\nc"},
		{"keeps tabs and newlines", "a\tb\nc", 100, "a\tb\nc"},
		{"strips control runes", "a\x00b\x1bc", 100, "abc"},
		{"strips zero-width space", "a​b", 100, "ab"},
		{"strips surrogate-free noncharacters", "a﷐b￾c", 100, "abc"},
		{"caps rune length", "héllo wörld", 5, "héllo"},
		{"empty stays empty", "   ", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizePlainText(tt.input, tt.max))
		})
	}
}

func TestSanitizeLimits(t *testing.T) {
	long := strings.Repeat("x", 10000)
	assert.Len(t, sanitizeUserName(long), maxUserNameLen)
	assert.Len(t, sanitizeRoomName(long), maxRoomNameLen)
	assert.Len(t, sanitizeChatMessage(long), maxChatMessageLen)
	assert.Len(t, sanitizeInviteMessage(long), maxInviteMessageLen)
	assert.Len(t, sanitizeClipboardText(long), maxClipboardTextLen)
}
