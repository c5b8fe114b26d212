// Package agent talks to the browser automation service that drives
// restaurant sites on the user's behalf.
package agent

// ActionType categorizes automation tasks.
type ActionType string

const (
	// ActionSearch checks live availability for a restaurant.
	ActionSearch ActionType = "search"
	// ActionBooking places a reservation.
	ActionBooking ActionType = "booking"
)

// Task is one unit of browser automation work.
type Task struct {
	Type        ActionType        `json:"type"`
	Instruction string            `json:"instruction"`
	UserID      string            `json:"user_id"`
	CDPURL      string            `json:"cdp_url"`
	Secrets     map[string]string `json:"secrets,omitempty"`
}

// Result is the outcome of a completed automation task.
type Result struct {
	Output string `json:"output"`
	// ConfirmationRequired is set when the reservation platform sent the
	// user a code that must be relayed back to finish the booking.
	ConfirmationRequired bool `json:"confirmation_required"`
}
