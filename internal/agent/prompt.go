package agent

import (
	"fmt"
	"strings"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Placeholder tokens for contact details. Instructions carry these instead
// of the real values; the automation service substitutes them from the task
// secrets right before filling the reservation form. Contact details never
// ride inside prompt text.
const (
	PlaceholderName  = "{{name}}"
	PlaceholderEmail = "{{email}}"
	PlaceholderPhone = "{{phone}}"
)

// SearchInstruction builds the instruction for a live availability check.
func SearchInstruction(req domain.BookingRequest, query string) string {
	var b strings.Builder
	b.WriteString("Search for restaurant reservation availability.\n")
	if req.Restaurant != "" {
		fmt.Fprintf(&b, "Restaurant: %s\n", req.Restaurant)
	}
	if req.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", req.Date)
	}
	if req.Time != "" {
		fmt.Fprintf(&b, "Preferred time: %s\n", req.Time)
	}
	if req.PartySize > 0 {
		fmt.Fprintf(&b, "Party size: %d\n", req.PartySize)
	}
	if query != "" {
		fmt.Fprintf(&b, "User request: %s\n", query)
	}
	b.WriteString("Open the restaurant's reservation page and report every available time slot " +
		"for the requested date and party size, in HH:MM 24-hour format. " +
		"If nothing is available, say so and list the nearest alternatives you can find. " +
		"Do not book anything.")
	return b.String()
}

// BookingInstruction builds the instruction for placing a reservation. The
// request must be complete; contact fields appear only as placeholders.
func BookingInstruction(req domain.BookingRequest) string {
	var b strings.Builder
	b.WriteString("Place a restaurant reservation.\n")
	fmt.Fprintf(&b, "Restaurant: %s\n", req.Restaurant)
	fmt.Fprintf(&b, "Date: %s\n", req.Date)
	fmt.Fprintf(&b, "Time: %s\n", req.Time)
	fmt.Fprintf(&b, "Party size: %d\n", req.PartySize)
	fmt.Fprintf(&b, "Guest name: %s\n", PlaceholderName)
	fmt.Fprintf(&b, "Email: %s\n", PlaceholderEmail)
	fmt.Fprintf(&b, "Phone: %s\n", PlaceholderPhone)
	b.WriteString("Open the restaurant's reservation page, select the exact date, time and " +
		"party size above, and fill the guest details using the placeholder values exactly " +
		"as written. Submit the reservation. If the platform asks for a confirmation code " +
		"sent to the guest, stop there and report that a code is required. " +
		"Report the final state of the booking.")
	return b.String()
}

// Secrets returns the contact details to substitute for the instruction
// placeholders, keyed by placeholder name.
func Secrets(req domain.BookingRequest) map[string]string {
	return map[string]string{
		"name":  req.Name,
		"email": req.Email,
		"phone": req.Phone,
	}
}
