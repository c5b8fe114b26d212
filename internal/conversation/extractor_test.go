package conversation

import (
	"reflect"
	"testing"
	"time"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Monday 2026-08-24.
var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func slots(ss ...string) *domain.SearchContext {
	return &domain.SearchContext{Slots: ss}
}

func TestExtract_SearchRequest(t *testing.T) {
	got := Extract(testNow, "Check Yardbird tomorrow for 2", StepMenu, nil, nil)

	if got.Restaurant != "Yardbird" {
		t.Errorf("Restaurant = %q, want Yardbird", got.Restaurant)
	}
	if got.Date != "2026-08-25" {
		t.Errorf("Date = %q, want 2026-08-25", got.Date)
	}
	if got.PartySize != 2 {
		t.Errorf("PartySize = %d, want 2", got.PartySize)
	}
	if got.Time != "" {
		t.Errorf("Time = %q, want empty", got.Time)
	}
}

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"tomorrow at Yardbird", "2026-08-25"},
		{"free tonight?", "2026-08-24"},
		{"anything today", "2026-08-24"},
		{"on Friday please", "2026-08-28"},
		{"next monday", "2026-08-31"}, // bare weekday means the coming one
		{"2026-09-01 works", "2026-09-01"},
		{"sep 1 please", "2026-09-01"},
		{"the 1st of September", "2026-09-01"},
		{"jan 5", "2027-01-05"}, // already past this year
		{"no date here", ""},
	}
	for _, tt := range tests {
		if got := extractDate(testNow, tt.text); got != tt.want {
			t.Errorf("extractDate(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractTime_SlotReferences(t *testing.T) {
	offered := slots("19:30", "20:00", "21:15")

	tests := []struct {
		text string
		want string
	}{
		{"book the first one", "19:30"},
		{"the second option", "20:00"},
		{"last one please", "21:15"},
		{"the earliest", "19:30"},
		{"latest works", "21:15"},
		{"8pm", "20:00"}, // hour resolves against the single 20:xx slot
		{"19:30", "19:30"},
		{"18:00", ""},   // not offered
		{"8:15pm", ""},  // explicit minutes must match an offered slot
		{"9:15pm", "21:15"},
	}
	for _, tt := range tests {
		if got := extractTime(tt.text, StepMenu, offered); got != tt.want {
			t.Errorf("extractTime(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractTime_AmbiguousHour(t *testing.T) {
	offered := slots("20:00", "20:30")
	if got := extractTime("8pm", StepMenu, offered); got != "" {
		t.Errorf("two slots in the hour should be ambiguous, got %q", got)
	}
	// Written-out minutes disambiguate.
	if got := extractTime("8:30pm", StepMenu, offered); got != "20:30" {
		t.Errorf("explicit minutes should pick the exact slot, got %q", got)
	}
}

func TestExtractTime_NoSlotContext(t *testing.T) {
	// A time reference with no offered slots is never guessed from free
	// text; only an explicit ask for the time accepts one.
	if got := extractTime("around 8pm", StepMenu, nil); got != "" {
		t.Errorf("free-text time without slots = %q, want empty", got)
	}
	if got := extractTime("the first one", StepMenu, nil); got != "" {
		t.Errorf("ordinal without slots = %q, want empty", got)
	}
	if got := extractTime("7:30pm", StepTime, nil); got != "19:30" {
		t.Errorf("explicit time when asked = %q, want 19:30", got)
	}
	if got := extractTime("19:30", StepTime, nil); got != "19:30" {
		t.Errorf("24-hour time when asked = %q, want 19:30", got)
	}
}

func TestExtractPartySize(t *testing.T) {
	tests := []struct {
		text string
		step Step
		want int
	}{
		{"table for 4", StepMenu, 4},
		{"party of 6", StepMenu, 6},
		{"we are 3 people", StepMenu, 3},
		{"4", StepPartySize, 4},
		{"4", StepMenu, 0}, // bare number only counts when asked
		{"for 99", StepMenu, 0},
	}
	for _, tt := range tests {
		if got := extractPartySize(tt.text, tt.step); got != tt.want {
			t.Errorf("extractPartySize(%q, %v) = %d, want %d", tt.text, tt.step, got, tt.want)
		}
	}
}

func TestExtract_ContactFieldsOnlyWhenAwaited(t *testing.T) {
	// An email in a message addressed to another step must not be captured.
	got := Extract(testNow, "reach me at jane@example.com", StepMenu, nil, nil)
	if got.Email != "" {
		t.Errorf("Email = %q, want empty outside StepEmail", got.Email)
	}

	got = Extract(testNow, "it's jane@example.com", StepEmail, nil, nil)
	if got.Email != "jane@example.com" {
		t.Errorf("Email = %q, want jane@example.com", got.Email)
	}

	got = Extract(testNow, "Jane O'Brien", StepName, nil, nil)
	if got.Name != "Jane O'Brien" {
		t.Errorf("Name = %q, want Jane O'Brien", got.Name)
	}
}

func TestExtractPhone(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"+852 6123-4567", "+85261234567"},
		{"(212) 555-0182", "2125550182"},
		{"call me", ""},
		{"12345", ""}, // too short
	}
	for _, tt := range tests {
		if got := extractPhone(tt.text); got != tt.want {
			t.Errorf("extractPhone(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtract_ProfileFillsContacts(t *testing.T) {
	profile := &domain.Profile{Name: "Jane", Email: "jane@example.com", Phone: "+85261234567"}
	got := Extract(testNow, "book it", StepMenu, nil, profile)

	if got.Name != "Jane" || got.Email != "jane@example.com" || got.Phone != "+85261234567" {
		t.Errorf("profile not applied: %+v", got)
	}
}

func TestValidConfirmationCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{" 123456 ", true},
		{"12a45", false},
		{"12345", false},
		{"1234567", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidConfirmationCode(tt.code); got != tt.want {
			t.Errorf("ValidConfirmationCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestParseSlots(t *testing.T) {
	raw := "Tables are open at 19:30, 8:00pm and 9pm tonight. 19:30 fills up fast."
	got := ParseSlots(raw)
	want := []string{"19:30", "20:00", "21:00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSlots = %v, want %v", got, want)
	}

	if got := ParseSlots("fully booked, sorry"); got != nil {
		t.Errorf("ParseSlots on slotless text = %v, want nil", got)
	}
}
