package chat

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("hello"); err != nil {
		t.Errorf("plain message should validate: %v", err)
	}
	if err := ValidateMessage(""); err == nil {
		t.Error("empty message should fail")
	}
	if err := ValidateMessage("   \n\t"); err == nil {
		t.Error("whitespace-only message should fail")
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageBytes+1)); err == nil {
		t.Error("oversized message should fail")
	}
	if err := ValidateMessage(strings.Repeat("é", MaxTextChars+1)); err == nil {
		t.Error("message over the character limit should fail")
	}
	if err := ValidateMessage(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 should fail")
	}
}
