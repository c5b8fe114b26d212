// Package domain contains core domain types for the concierge bot.
package domain

import "strconv"

// Field identifies one named datum of a booking request.
type Field string

const (
	FieldRestaurant Field = "restaurant"
	FieldDate       Field = "date"
	FieldTime       Field = "time"
	FieldPartySize  Field = "party_size"
	FieldName       Field = "name"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
)

// CollectionOrder is the order in which missing fields are asked for.
var CollectionOrder = []Field{
	FieldRestaurant,
	FieldDate,
	FieldTime,
	FieldPartySize,
	FieldName,
	FieldEmail,
	FieldPhone,
}

// BookingRequest is built incrementally across conversation turns.
type BookingRequest struct {
	Restaurant string
	Date       string // YYYY-MM-DD
	Time       string // HH:MM, 24-hour
	PartySize  int
	Name       string
	Email      string
	Phone      string
}

// Get returns the current value of a field, or "" if unset.
func (b *BookingRequest) Get(f Field) string {
	switch f {
	case FieldRestaurant:
		return b.Restaurant
	case FieldDate:
		return b.Date
	case FieldTime:
		return b.Time
	case FieldPartySize:
		if b.PartySize <= 0 {
			return ""
		}
		return strconv.Itoa(b.PartySize)
	case FieldName:
		return b.Name
	case FieldEmail:
		return b.Email
	case FieldPhone:
		return b.Phone
	}
	return ""
}

// Merge copies non-empty fields from other, never overwriting a set value.
func (b *BookingRequest) Merge(other BookingRequest) {
	if b.Restaurant == "" {
		b.Restaurant = other.Restaurant
	}
	if b.Date == "" {
		b.Date = other.Date
	}
	if b.Time == "" {
		b.Time = other.Time
	}
	if b.PartySize <= 0 {
		b.PartySize = other.PartySize
	}
	if b.Name == "" {
		b.Name = other.Name
	}
	if b.Email == "" {
		b.Email = other.Email
	}
	if b.Phone == "" {
		b.Phone = other.Phone
	}
}

// ClearStaleTime drops a chosen time that is no longer among the offered
// slots, so a fresh choice can replace it instead of wedging collection.
func (b *BookingRequest) ClearStaleTime(search *SearchContext) {
	if b.Time != "" && search.HasSlots() && !search.Offers(b.Time) {
		b.Time = ""
	}
}

// ApplyProfile fills empty contact fields from a saved profile.
func (b *BookingRequest) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	if b.Name == "" {
		b.Name = p.Name
	}
	if b.Email == "" {
		b.Email = p.Email
	}
	if b.Phone == "" {
		b.Phone = p.Phone
	}
}

// MissingFields returns required-but-missing fields in collection order.
// A chosen time that is not among previously offered slots counts as
// missing: the user must pick one of the slots the search actually found.
func (b *BookingRequest) MissingFields(search *SearchContext) []Field {
	var missing []Field
	for _, f := range CollectionOrder {
		if f == FieldTime && b.Time != "" && search.HasSlots() && !search.Offers(b.Time) {
			missing = append(missing, f)
			continue
		}
		if b.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether every required field is present and consistent.
func (b *BookingRequest) Complete(search *SearchContext) bool {
	return len(b.MissingFields(search)) == 0
}
