package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Extract maps free-form user text to booking fields, best effort. It is
// pure: no storage or network access, and unparseable input simply yields
// fewer fields. Contact fields are only read when the current step is
// explicitly awaiting them, so a message addressed to another step can never
// overwrite them. Saved profile data fills whatever contact fields remain.
func Extract(now time.Time, text string, step Step, search *domain.SearchContext, profile *domain.Profile) domain.BookingRequest {
	var req domain.BookingRequest
	text = strings.TrimSpace(text)
	if text == "" {
		req.ApplyProfile(profile)
		return req
	}

	switch step {
	case StepRestaurant:
		req.Restaurant = extractRestaurantDirect(text)
	case StepName:
		req.Name = extractName(text)
	case StepEmail:
		req.Email = extractEmail(text)
	case StepPhone:
		req.Phone = extractPhone(text)
	default:
		req.Restaurant = extractRestaurant(text)
	}

	req.Date = extractDate(now, text)
	req.Time = extractTime(text, step, search)
	req.PartySize = extractPartySize(text, step)

	req.ApplyProfile(profile)
	return req
}

var (
	restaurantRe = regexp.MustCompile(`(?:[Cc]heck|[Bb]ook|[Rr]eserve|[Tt]able at|\bat)\s+((?:[A-Z][\w'&.-]*)(?:\s+(?:[A-Z][\w'&.-]*|&|de|la|le|di))*)`)

	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRe  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
	clockRe     = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b|\b(\d{1,2}):(\d{2})\b`)
	ordinalRe   = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|1st|2nd|3rd|4th|5th|last)\s+(?:one|option|slot|time)?\b`)
	partyRe     = regexp.MustCompile(`(?i)\b(?:for|party of|table for)\s+(\d{1,2})\b|\b(\d{1,2})\s+(?:people|persons|guests|pax)\b`)
	emailRe     = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phoneRe     = regexp.MustCompile(`\+?\d[\d\s().-]{5,20}\d`)
	nameRe      = regexp.MustCompile(`^[\p{L}][\p{L} .'-]{1,80}$`)
	bareIntRe   = regexp.MustCompile(`\b(\d{1,2})\b`)
	codeRe      = regexp.MustCompile(`^\d+$`)
	slotScanRe  = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(am|pm)?\b|\b(\d{1,2})\s*(am|pm)\b`)
	weekdayName = map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	ordinalIndex = map[string]int{
		"first": 0, "1st": 0,
		"second": 1, "2nd": 1,
		"third": 2, "3rd": 2,
		"fourth": 3, "4th": 3,
		"fifth": 4, "5th": 4,
	}
	monthNum = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// extractRestaurant finds a restaurant name in free text by looking for
// capitalized words after a booking verb.
func extractRestaurant(text string) string {
	m := restaurantRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractRestaurantDirect treats the whole reply as the restaurant name,
// used when the engine just asked for it.
func extractRestaurantDirect(text string) string {
	if strings.HasPrefix(text, "/") {
		return ""
	}
	return strings.TrimSpace(text)
}

func extractDate(now time.Time, text string) string {
	lower := strings.ToLower(text)

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse("2006-01-02", m[0]); err == nil {
			return m[0]
		}
	}

	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1).Format("2006-01-02")
	case strings.Contains(lower, "today"), strings.Contains(lower, "tonight"):
		return now.Format("2006-01-02")
	}

	for name, wd := range weekdayName {
		if !strings.Contains(lower, name) {
			continue
		}
		days := (int(wd) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7 // a bare weekday name means the coming one, not today
		}
		return now.AddDate(0, 0, days).Format("2006-01-02")
	}

	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		return monthDayDate(now, m[1], m[2])
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		return monthDayDate(now, m[2], m[1])
	}
	return ""
}

// monthDayDate resolves a month-name date to the nearest future occurrence.
func monthDayDate(now time.Time, month, day string) string {
	mo, ok := monthNum[strings.ToLower(month)[:3]]
	if !ok {
		return ""
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return ""
	}
	candidate := time.Date(now.Year(), mo, d, 0, 0, 0, 0, now.Location())
	if candidate.Day() != d {
		return "" // e.g. Feb 30 rolled over
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if candidate.Before(today) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate.Format("2006-01-02")
}

// extractTime resolves a time reference. Ordinal and superlative references
// need an offered-slot list. A clock token must match an offered slot when
// one exists; without slots it is accepted only when the engine explicitly
// asked for a time, never guessed from free text.
func extractTime(text string, step Step, search *domain.SearchContext) string {
	lower := strings.ToLower(text)

	if search.HasSlots() {
		if m := ordinalRe.FindStringSubmatch(lower); m != nil {
			if m[1] == "last" {
				return search.SlotAt(len(search.Slots) - 1)
			}
			if i, ok := ordinalIndex[m[1]]; ok {
				return search.SlotAt(i)
			}
		}
		if strings.Contains(lower, "earliest") {
			return search.Earliest()
		}
		if strings.Contains(lower, "latest") {
			return search.Latest()
		}
	}

	clock, exact := extractClock(text)
	if clock == "" {
		return ""
	}
	if search.HasSlots() {
		if exact {
			// Full HH:MM must match an offered slot exactly.
			if search.Offers(clock) {
				return clock
			}
			return ""
		}
		// "8pm" may stand for any offered slot in that hour.
		hour := clock[:2]
		var match string
		for _, slot := range search.Slots {
			if strings.HasPrefix(slot, hour+":") {
				if match != "" {
					return "" // more than one slot that hour, ambiguous
				}
				match = slot
			}
		}
		return match
	}
	if step == StepTime {
		return clock
	}
	return ""
}

// extractClock finds an explicit clock token and normalizes it to HH:MM.
// exact reports whether the minutes were written out, as opposed to a bare
// hour like "8pm".
func extractClock(text string) (clock string, exact bool) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if m[4] != "" { // 24-hour HH:MM
		h, _ := strconv.Atoi(m[4])
		mi, _ := strconv.Atoi(m[5])
		if h > 23 || mi > 59 {
			return "", false
		}
		return clockString(h, mi), true
	}
	h, _ := strconv.Atoi(m[1])
	mi := 0
	if m[2] != "" {
		mi, _ = strconv.Atoi(m[2])
		exact = true
	}
	if h < 1 || h > 12 || mi > 59 {
		return "", false
	}
	if strings.EqualFold(m[3], "pm") && h != 12 {
		h += 12
	}
	if strings.EqualFold(m[3], "am") && h == 12 {
		h = 0
	}
	return clockString(h, mi), exact
}

func clockString(h, m int) string {
	return strconv.Itoa(h/10) + strconv.Itoa(h%10) + ":" + strconv.Itoa(m/10) + strconv.Itoa(m%10)
}

func extractPartySize(text string, step Step) int {
	if m := partyRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 50 {
			return n
		}
	}
	if step == StepPartySize {
		if m := bareIntRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 50 {
				return n
			}
		}
	}
	return 0
}

func extractName(text string) string {
	text = strings.TrimSpace(text)
	if nameRe.MatchString(text) {
		return text
	}
	return ""
}

func extractEmail(text string) string {
	return emailRe.FindString(text)
}

func extractPhone(text string) string {
	raw := phoneRe.FindString(text)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return b.String()
}

// confirmationCodeLength is the expected length of platform confirmation
// codes relayed by the user.
const confirmationCodeLength = 6

// ValidConfirmationCode reports whether text is an acceptable confirmation
// code: entirely numeric and exactly the expected length.
func ValidConfirmationCode(text string) bool {
	text = strings.TrimSpace(text)
	return len(text) == confirmationCodeLength && codeRe.MatchString(text)
}

// ParseSlots pulls offered time slots out of free-form agent output, in
// order of appearance, normalized to HH:MM 24-hour, deduplicated.
func ParseSlots(raw string) []string {
	var slots []string
	seen := make(map[string]bool)
	for _, m := range slotScanRe.FindAllStringSubmatch(raw, -1) {
		var slot string
		if m[4] != "" { // bare hour with am/pm
			h, _ := strconv.Atoi(m[4])
			slot = meridiem(h, 0, m[5])
		} else {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			if m[3] != "" {
				slot = meridiem(h, mi, m[3])
			} else if h <= 23 && mi <= 59 {
				slot = clockString(h, mi)
			}
		}
		if slot != "" && !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
	}
	return slots
}

func meridiem(h, m int, ampm string) string {
	if h < 1 || h > 12 || m > 59 {
		return ""
	}
	if strings.EqualFold(ampm, "pm") && h != 12 {
		h += 12
	}
	if strings.EqualFold(ampm, "am") && h == 12 {
		h = 0
	}
	return clockString(h, m)
}
