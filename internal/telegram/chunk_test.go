package telegram

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_ShortTextUnsplit(t *testing.T) {
	got := SplitMessage("hello", 4000)
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("SplitMessage = %v", got)
	}
}

func TestSplitMessage_NumbersParts(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Slot %02d is available for booking tonight.\n", i)
	}
	text := b.String()

	parts := SplitMessage(text, 400)
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	for i, p := range parts {
		if len(p) > 400 {
			t.Errorf("part %d is %d bytes, over the limit", i, len(p))
		}
		wantPrefix := fmt.Sprintf("(Part %d/%d)\n", i+1, len(parts))
		if !strings.HasPrefix(p, wantPrefix) {
			t.Errorf("part %d missing prefix %q: %q", i, wantPrefix, p[:20])
		}
	}

	// Nothing dropped: stripping prefixes and whitespace restores the text.
	var joined strings.Builder
	for i, p := range parts {
		joined.WriteString(strings.TrimPrefix(p, fmt.Sprintf("(Part %d/%d)\n", i+1, len(parts))))
		joined.WriteString("\n")
	}
	for i := 0; i < 40; i++ {
		line := fmt.Sprintf("Slot %02d is available for booking tonight.", i)
		if !strings.Contains(joined.String(), line) {
			t.Fatalf("line %d lost in splitting", i)
		}
	}
}

func TestSplitMessage_PrefersNewlineBoundary(t *testing.T) {
	text := strings.Repeat("a", 300) + "\n" + strings.Repeat("b", 300)
	parts := SplitMessage(text, 400)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if strings.ContainsRune(strings.TrimPrefix(parts[0], "(Part 1/2)\n"), 'b') {
		t.Error("first part crosses the newline boundary")
	}
}

func TestSplitMessage_UnbreakableMultibyteText(t *testing.T) {
	// No newlines or spaces anywhere, every rune three bytes wide. A hard
	// cut must still land on a rune boundary.
	text := strings.Repeat("只今満席です", 40)
	parts := SplitMessage(text, 99) // budget of 86 bytes falls mid-rune
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	var runes int
	for i, p := range parts {
		if len(p) > 99 {
			t.Errorf("part %d is %d bytes, over the limit", i, len(p))
		}
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8: %q", i, p)
		}
		runes += utf8.RuneCountInString(strings.TrimPrefix(p, fmt.Sprintf("(Part %d/%d)\n", i+1, len(parts))))
	}
	if want := utf8.RuneCountInString(text); runes != want {
		t.Errorf("reassembled %d runes, want %d", runes, want)
	}
}

func TestSplitMessage_UnbreakableText(t *testing.T) {
	text := strings.Repeat("x", 1000)
	parts := SplitMessage(text, 400)
	total := 0
	for i, p := range parts {
		if len(p) > 400 {
			t.Errorf("part %d is %d bytes, over the limit", i, len(p))
		}
		total += len(strings.TrimPrefix(p, fmt.Sprintf("(Part %d/%d)\n", i+1, len(parts))))
	}
	if total != 1000 {
		t.Errorf("reassembled %d bytes, want 1000", total)
	}
}
