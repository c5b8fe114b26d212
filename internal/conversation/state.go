// Package conversation implements the per-user finite state machine that
// collects booking fields and drives search and booking actions.
package conversation

import (
	"sync"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Step is the engine's current position in a user's flow.
type Step int

const (
	// StepMenu is both the initial and the terminal step.
	StepMenu Step = iota

	// Booking field collection.
	StepRestaurant
	StepDate
	StepTime
	StepPartySize
	StepName
	StepEmail
	StepPhone

	// Post-booking.
	StepConfirmationCode
	StepCleanupConfirm

	// Profile editing sub-flow.
	StepProfileName
	StepProfileEmail
	StepProfilePhone
)

func (s Step) String() string {
	switch s {
	case StepMenu:
		return "menu"
	case StepRestaurant:
		return "await_restaurant"
	case StepDate:
		return "await_date"
	case StepTime:
		return "await_time"
	case StepPartySize:
		return "await_party_size"
	case StepName:
		return "await_name"
	case StepEmail:
		return "await_email"
	case StepPhone:
		return "await_phone"
	case StepConfirmationCode:
		return "await_confirmation_code"
	case StepCleanupConfirm:
		return "await_cleanup_confirm"
	case StepProfileName:
		return "await_profile_name"
	case StepProfileEmail:
		return "await_profile_email"
	case StepProfilePhone:
		return "await_profile_phone"
	}
	return "unknown"
}

// stepForField maps a missing booking field to the step that collects it.
func stepForField(f domain.Field) Step {
	switch f {
	case domain.FieldRestaurant:
		return StepRestaurant
	case domain.FieldDate:
		return StepDate
	case domain.FieldTime:
		return StepTime
	case domain.FieldPartySize:
		return StepPartySize
	case domain.FieldName:
		return StepName
	case domain.FieldEmail:
		return StepEmail
	case domain.FieldPhone:
		return StepPhone
	}
	return StepMenu
}

// State is one user's conversation state. Mutated only under the user's
// dispatch lane, except for Epoch and the reset performed by cancellation.
type State struct {
	UserID  string
	Step    Step
	Pending domain.BookingRequest
	// Query is the user text that started the pending action.
	Query string
	// Booking is set when the pending action is a reservation rather than
	// an availability check.
	Booking bool
	// Search is the last availability result, kept across cancellation.
	Search *domain.SearchContext
	// Draft collects profile fields during the profile sub-flow.
	Draft domain.Profile
	// Epoch increments on every cancellation. A long-running action
	// captures it at the start and discards its result on mismatch.
	Epoch uint64
}

// states is the concurrent-safe store of per-user conversation state.
type states struct {
	mu sync.Mutex
	m  map[string]*State
}

func newStates() *states {
	return &states{m: make(map[string]*State)}
}

// get returns the user's state, creating it at StepMenu if absent.
func (s *states) get(userID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[userID]
	if !ok {
		st = &State{UserID: userID}
		s.m[userID] = st
	}
	return st
}

// snapshot returns a copy of the user's state to work on. Message handling
// mutates the copy; commit applies it back unless a cancellation intervened.
// The Search pointer is shared but SearchContext values are never mutated in
// place.
func (s *states) snapshot(userID string) State {
	return *s.get(userID)
}

// commit applies a worked-on copy back to the authoritative state. It fails
// when the user cancelled (epoch advanced) while the copy was in use; the
// caller must then discard its replies as well.
func (s *states) commit(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[st.UserID]
	if !ok || cur.Epoch != st.Epoch {
		return false
	}
	*cur = st
	return true
}

// cancel discards in-progress collection and returns to the menu. The last
// search context survives so slot references still resolve afterwards.
func (s *states) cancel(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[userID]
	if !ok {
		return
	}
	st.Epoch++
	st.Step = StepMenu
	st.Pending = domain.BookingRequest{}
	st.Query = ""
	st.Booking = false
	st.Draft = domain.Profile{}
}

// drop removes the user's state entirely.
func (s *states) drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
