package validator

import (
	"strings"
	"testing"
)

func TestValidateChannelID(t *testing.T) {
	if err := ValidateChannelID(""); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := ValidateChannelID("room1"); err != nil {
		t.Fatalf("expected room1 to be valid, got %v", err)
	}
	if err := ValidateChannelID(strings.Repeat("a", 513)); err == nil {
		t.Fatal("expected error for over-length id")
	}
	if err := ValidateChannelID("room\x00one"); err == nil {
		t.Fatal("expected error for control character")
	}
}

func TestValidateHexColor(t *testing.T) {
	ok := []string{"#fff", "#FFFFFF", "#a1b2c3"}
	for _, c := range ok {
		if err := ValidateHexColor(c); err != nil {
			t.Errorf("expected %q valid, got %v", c, err)
		}
	}
	bad := []string{"red", "#ff", "#gggggg", "fff"}
	for _, c := range bad {
		if err := ValidateHexColor(c); err == nil {
			t.Errorf("expected %q invalid", c)
		}
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName(""); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := ValidateDisplayName(strings.Repeat("a", 41)); err == nil {
		t.Fatal("expected error for over-length name")
	}
	if err := ValidateDisplayName("Ada"); err != nil {
		t.Fatalf("expected Ada valid, got %v", err)
	}
}

func TestSanitizeChatTrimsAndClamps(t *testing.T) {
	if got := SanitizeChat("  hi  "); got != "hi" {
		t.Fatalf("expected trimmed 'hi', got %q", got)
	}
	long := strings.Repeat("x", 600)
	got := SanitizeChat(long)
	if len([]rune(got)) != MaxChatLen {
		t.Fatalf("expected clamp to %d runes, got %d", MaxChatLen, len([]rune(got)))
	}
}
