package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Message limits enforced before relay. The byte cap bounds the frame a
// client can push through the relay; the rune cap matches what the lobby
// composer accepts.
const (
	MaxMessageBytes = 4096
	MaxTextChars    = 2000
)

// ValidateMessage rejects empty, oversized, or malformed message text. Valid
// text is relayed verbatim and never stored.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("chat: empty message")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("chat: message over %d bytes", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("chat: message is not valid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("chat: message over %d characters", MaxTextChars)
	}
	return nil
}
