package ai

import (
	"testing"

	"github.com/nsavelyev/maitre/internal/domain"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		raw  string
		want Intent
		ok   bool
	}{
		{"1", IntentRecommendation, true},
		{"2", IntentSearch, true},
		{"3", IntentBooking, true},
		{" 2 ", IntentSearch, true},
		{"Intent: 3", IntentBooking, true},
		{"The answer is 1.", IntentRecommendation, true},
		{"", 0, false},
		{"maybe", 0, false},
		{"4", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseIntent(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseIntent(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIntentString(t *testing.T) {
	if IntentBooking.String() != "booking" {
		t.Errorf("IntentBooking.String() = %q", IntentBooking.String())
	}
	if Intent(9).String() != "intent(9)" {
		t.Errorf("unknown intent String() = %q", Intent(9).String())
	}
}

func TestHistoryMessages_RoleMapping(t *testing.T) {
	history := []domain.HistoryMessage{
		{Role: domain.RoleUser, Content: "any good izakayas?"},
		{Role: domain.RoleAssistant, Content: "Yardbird is a favourite."},
	}
	msgs := historyMessages(history)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].OfUser == nil {
		t.Error("first message should carry the user role")
	}
	if msgs[1].OfAssistant == nil {
		t.Error("second message should carry the assistant role")
	}
}
