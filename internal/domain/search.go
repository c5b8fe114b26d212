package domain

import "time"

// SearchContext is the last availability result known for a user. The slot
// list is ordered as offered, so references like "the first one" resolve
// against it.
type SearchContext struct {
	UserID     string
	Query      string
	Restaurant string
	Slots      []string // HH:MM, 24-hour, in offered order
	Raw        string   // full agent result, kept opaque
	CreatedAt  time.Time
}

// HasSlots reports whether the context carries an offered-slot list.
func (s *SearchContext) HasSlots() bool {
	return s != nil && len(s.Slots) > 0
}

// Offers reports whether t is one of the offered slots.
func (s *SearchContext) Offers(t string) bool {
	if s == nil {
		return false
	}
	for _, slot := range s.Slots {
		if slot == t {
			return true
		}
	}
	return false
}

// SlotAt returns the i-th offered slot (0-based), or "" if out of range.
func (s *SearchContext) SlotAt(i int) string {
	if s == nil || i < 0 || i >= len(s.Slots) {
		return ""
	}
	return s.Slots[i]
}

// Earliest returns the chronologically smallest offered slot.
func (s *SearchContext) Earliest() string {
	return s.pick(func(a, b string) bool { return a < b })
}

// Latest returns the chronologically largest offered slot.
func (s *SearchContext) Latest() string {
	return s.pick(func(a, b string) bool { return a > b })
}

func (s *SearchContext) pick(better func(a, b string) bool) string {
	if !s.HasSlots() {
		return ""
	}
	best := s.Slots[0]
	for _, slot := range s.Slots[1:] {
		if better(slot, best) {
			best = slot
		}
	}
	return best
}
