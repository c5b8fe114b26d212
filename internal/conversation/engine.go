package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nsavelyev/maitre/internal/agent"
	"github.com/nsavelyev/maitre/internal/ai"
	"github.com/nsavelyev/maitre/internal/domain"
	"github.com/nsavelyev/maitre/internal/session"
	"github.com/nsavelyev/maitre/internal/store"
)

// Model is the language-model surface the engine needs.
type Model interface {
	ClassifyIntent(ctx context.Context, text string, history []domain.HistoryMessage) (ai.Intent, error)
	Recommend(ctx context.Context, text string, history []domain.HistoryMessage) (string, error)
	FormatResult(ctx context.Context, raw string) string
}

// Executor runs browser automation tasks. *agent.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, task agent.Task) (*agent.Result, error)
}

// searchFields are the fields required before an availability check can run.
// Time is optional for a search; the results supply the choices.
var searchFields = []domain.Field{domain.FieldRestaurant, domain.FieldDate, domain.FieldPartySize}

// Engine is the per-user conversation state machine. One call to Respond
// handles one inbound message; callers must serialize calls per user (see
// Dispatcher).
type Engine struct {
	repo       store.Repository
	model      Model
	exec       Executor
	pool       *session.Pool
	states     *states
	maxHistory int
	now        func() time.Time
}

// NewEngine creates a conversation engine.
func NewEngine(repo store.Repository, model Model, exec Executor, pool *session.Pool, maxHistory int) *Engine {
	return &Engine{
		repo:       repo,
		model:      model,
		exec:       exec,
		pool:       pool,
		states:     newStates(),
		maxHistory: maxHistory,
		now:        time.Now,
	}
}

// Respond processes one inbound message and returns the outbound replies in
// order. It blocks for the duration of any automation call it triggers.
func (e *Engine) Respond(ctx context.Context, userID, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		return e.command(ctx, userID, text)
	}
	if strings.EqualFold(text, "cancel") {
		return e.Cancel(ctx, userID)
	}

	// Work on a copy of the state. Commit applies it back at the end
	// unless the user cancelled while an automation call was in flight,
	// in which case both the mutations and the replies are discarded.
	st := e.states.snapshot(userID)
	e.appendHistory(ctx, userID, domain.RoleUser, text)

	profile, err := e.repo.GetProfile(ctx, userID)
	if err != nil {
		slog.Warn("Profile lookup failed, continuing without", "user_id", userID, "error", err)
		profile = nil
	}

	var replies []string
	switch st.Step {
	case StepConfirmationCode:
		replies = e.handleConfirmationCode(ctx, &st, text)
	case StepCleanupConfirm:
		replies = e.handleCleanupConfirm(ctx, &st, text)
	case StepProfileName, StepProfileEmail, StepProfilePhone:
		replies = e.handleProfileFlow(ctx, &st, text)
	case StepMenu:
		replies = e.handleMenu(ctx, &st, text, profile)
	default:
		replies = e.handleCollect(ctx, &st, text, profile)
	}

	if !e.states.commit(st) {
		slog.Info("Discarding reply from cancelled turn", "user_id", userID)
		return nil
	}

	for _, r := range replies {
		e.appendHistory(ctx, userID, domain.RoleAssistant, r)
	}
	return replies
}

// Cancel discards any in-progress collection, in memory and in the store,
// and returns to the menu. Valid from every state. A completed profile
// survives; so does the last search.
func (e *Engine) Cancel(ctx context.Context, userID string) []string {
	e.states.cancel(userID)
	if err := e.repo.ClearPendingBooking(ctx, userID); err != nil {
		slog.Warn("Failed to clear booking record on cancel", "user_id", userID, "error", err)
	}
	return []string{"Okay, cancelled. What would you like to do next?"}
}

func (e *Engine) command(ctx context.Context, userID, text string) []string {
	cmd := strings.ToLower(strings.Fields(text)[0])
	switch cmd {
	case "/start":
		return []string{
			"Hi! I'm your restaurant concierge. I can recommend places to eat, " +
				"check live availability, and book a table for you. " +
				"Try something like \"Check Yardbird tomorrow for 2\".",
		}
	case "/help":
		return []string{
			"Here's what I can do:\n" +
				"- Recommend restaurants: \"somewhere nice for a date in Soho\"\n" +
				"- Check availability: \"Check Yardbird tomorrow for 2\"\n" +
				"- Book a table: \"book the 8pm one\"\n\n" +
				"Commands: /profile to save your contact details, " +
				"/forgetme to erase everything I know about you, /cancel to start over.",
		}
	case "/cancel":
		return e.Cancel(ctx, userID)
	case "/profile":
		return e.startProfileFlow(ctx, userID)
	case "/forgetme":
		return e.forget(ctx, userID)
	default:
		return []string{"I don't know that command. Try /help."}
	}
}

// handleMenu routes a fresh message: recommendation, availability search, or
// booking.
func (e *Engine) handleMenu(ctx context.Context, st *State, text string, profile *domain.Profile) []string {
	history, err := e.repo.GetHistory(ctx, st.UserID, e.maxHistory)
	if err != nil {
		slog.Warn("History lookup failed, classifying without context", "user_id", st.UserID, "error", err)
		history = nil
	}

	intent, err := e.model.ClassifyIntent(ctx, text, history)
	if err != nil {
		slog.Warn("Intent classification failed, assuming search", "user_id", st.UserID, "error", err)
		intent = ai.IntentSearch
	}
	slog.Debug("Message routed", "user_id", st.UserID, "intent", intent.String())

	switch intent {
	case ai.IntentRecommendation:
		out, err := e.model.Recommend(ctx, text, history)
		if err != nil {
			slog.Error("Recommendation failed", "user_id", st.UserID, "error", err)
			return []string{"Sorry, I couldn't come up with recommendations just now. Please try again."}
		}
		return []string{out}

	case ai.IntentBooking:
		st.Booking = true
	default:
		// A fresh search starts from a clean slate. Fields carry over only
		// into a booking that follows a search.
		st.Booking = false
		st.Pending = domain.BookingRequest{}
	}
	st.Query = text

	if st.Booking {
		if pending, err := e.repo.GetPendingBooking(ctx, st.UserID); err == nil && pending != nil {
			st.Pending.Merge(*pending)
		}
	}
	// A previously chosen time that the latest search no longer offers must
	// not block the fresh choice from taking its place.
	st.Pending.ClearStaleTime(st.Search)
	st.Pending.Merge(Extract(e.now(), text, st.Step, st.Search, profile))

	return e.advance(ctx, st)
}

// handleCollect processes a reply to a field prompt.
func (e *Engine) handleCollect(ctx context.Context, st *State, text string, profile *domain.Profile) []string {
	st.Pending.ClearStaleTime(st.Search)
	st.Pending.Merge(Extract(e.now(), text, st.Step, st.Search, profile))
	if st.Booking {
		if err := e.repo.SetPendingBooking(ctx, st.UserID, &st.Pending); err != nil {
			slog.Warn("Failed to persist booking progress", "user_id", st.UserID, "error", err)
		}
	}
	return e.advance(ctx, st)
}

// advance asks for the next missing field, or runs the pending action when
// nothing is missing. Repeating the same incomplete input yields the same
// prompt again.
func (e *Engine) advance(ctx context.Context, st *State) []string {
	missing := e.missingFields(st)
	if len(missing) > 0 {
		st.Step = stepForField(missing[0])
		return []string{e.promptFor(missing[0], st)}
	}
	if st.Booking {
		return e.runBooking(ctx, st)
	}
	return e.runSearch(ctx, st)
}

func (e *Engine) missingFields(st *State) []domain.Field {
	if st.Booking {
		return st.Pending.MissingFields(st.Search)
	}
	var missing []domain.Field
	for _, f := range searchFields {
		if st.Pending.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func (e *Engine) promptFor(f domain.Field, st *State) string {
	switch f {
	case domain.FieldRestaurant:
		return "Which restaurant should I look at?"
	case domain.FieldDate:
		return "What date? You can say things like \"tomorrow\", \"Friday\" or 2026-09-01."
	case domain.FieldTime:
		if st.Search.HasSlots() {
			return fmt.Sprintf("Which time works for you? Available: %s.", strings.Join(st.Search.Slots, ", "))
		}
		return "What time would you like? (e.g. 19:30 or 7:30pm)"
	case domain.FieldPartySize:
		return "How many people will be dining?"
	case domain.FieldName:
		return "What name should the reservation be under?"
	case domain.FieldEmail:
		return "What email address should I use for the booking?"
	case domain.FieldPhone:
		return "And a contact phone number?"
	}
	return "Could you tell me a bit more?"
}

// runSearch performs a live availability check.
func (e *Engine) runSearch(ctx context.Context, st *State) []string {
	res, err := e.exec.Execute(ctx, agent.Task{
		Type:        agent.ActionSearch,
		UserID:      st.UserID,
		Instruction: agent.SearchInstruction(st.Pending, st.Query),
	})
	if err != nil {
		return e.automationError(st, err)
	}

	st.Search = &domain.SearchContext{
		UserID:     st.UserID,
		Query:      st.Query,
		Restaurant: st.Pending.Restaurant,
		Slots:      ParseSlots(res.Output),
		Raw:        res.Output,
		CreatedAt:  e.now(),
	}
	st.Step = StepMenu

	return []string{e.model.FormatResult(ctx, res.Output)}
}

// runBooking places the reservation. Contact details travel in the task
// secrets, never inside the instruction text.
func (e *Engine) runBooking(ctx context.Context, st *State) []string {
	res, err := e.exec.Execute(ctx, agent.Task{
		Type:        agent.ActionBooking,
		UserID:      st.UserID,
		Instruction: agent.BookingInstruction(st.Pending),
		Secrets:     agent.Secrets(st.Pending),
	})
	if err != nil {
		return e.automationError(st, err)
	}

	if res.ConfirmationRequired {
		st.Step = StepConfirmationCode
		return []string{
			e.model.FormatResult(ctx, res.Output),
			"The restaurant sent you a confirmation code. Please reply with the 6-digit code to finish the booking.",
		}
	}
	return e.bookingDone(ctx, st, res.Output)
}

// bookingDone finishes a successful reservation. The confirmation always
// reaches the user, even when persistence fails afterwards.
func (e *Engine) bookingDone(ctx context.Context, st *State, raw string) []string {
	confirmation := e.model.FormatResult(ctx, raw)

	if err := e.repo.ClearPendingBooking(ctx, st.UserID); err != nil {
		slog.Error("Failed to clear booking record after success", "user_id", st.UserID, "error", err)
	}

	st.Step = StepCleanupConfirm
	return []string{
		confirmation,
		"Are you done browsing for now? Reply \"yes\" and I'll close your browser session, or \"no\" to keep it open.",
	}
}

// automationError maps executor failures onto user-facing messages.
func (e *Engine) automationError(st *State, err error) []string {
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		// Not an error from the user's point of view, just a duplicate.
		return []string{"I'm still working on your previous request. Give me a moment and try again."}
	case errors.Is(err, session.ErrCapacityExceeded):
		st.Step = StepMenu
		return []string{"I'm helping a lot of people right now and can't start a new browser session. Please try again shortly."}
	case errors.Is(err, agent.ErrAutomationTimeout):
		slog.Error("Automation timed out", "user_id", st.UserID, "error", err)
		st.Step = StepMenu
		return []string{"Sorry, that took longer than it should have and I gave up. Please send your request again."}
	default:
		slog.Error("Automation failed", "user_id", st.UserID, "error", err)
		st.Step = StepMenu
		return []string{"Sorry, something went wrong while browsing for you. Please try your request again."}
	}
}

// handleConfirmationCode relays a platform confirmation code. Anything that
// is not exactly a 6-digit number re-prompts without advancing.
func (e *Engine) handleConfirmationCode(ctx context.Context, st *State, text string) []string {
	code := strings.TrimSpace(text)
	if !ValidConfirmationCode(code) {
		return []string{"That doesn't look like the code. It should be exactly 6 digits, e.g. 123456."}
	}

	res, err := e.exec.Execute(ctx, agent.Task{
		Type:        agent.ActionBooking,
		UserID:      st.UserID,
		Instruction: fmt.Sprintf("Enter the confirmation code %s into the pending reservation form and submit it. Report the final state of the booking.", code),
	})
	if err != nil {
		return e.automationError(st, err)
	}
	return e.bookingDone(ctx, st, res.Output)
}

// handleCleanupConfirm tears the browser session down when the user is done.
func (e *Engine) handleCleanupConfirm(ctx context.Context, st *State, text string) []string {
	st.Step = StepMenu
	st.Pending = domain.BookingRequest{}
	st.Booking = false

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "yep", "yeah", "sure", "done":
		e.pool.Destroy(ctx, st.UserID)
		return []string{"All done, I've closed your browser session. Come back any time!"}
	default:
		return []string{"No problem, I'll keep it around for a little while. What's next?"}
	}
}

// startProfileFlow begins the profile-editing sub-flow.
func (e *Engine) startProfileFlow(ctx context.Context, userID string) []string {
	st := e.states.snapshot(userID)
	st.Draft = domain.Profile{UserID: userID}
	st.Step = StepProfileName

	var intro string
	if p, err := e.repo.GetProfile(ctx, userID); err == nil && p != nil {
		intro = fmt.Sprintf("You're currently saved as %s (%s, %s). Let's update that.\n", p.Name, p.Email, p.Phone)
	}
	if !e.states.commit(st) {
		return nil
	}
	return []string{intro + "What's your full name?"}
}

// handleProfileFlow collects name, email and phone in order, then saves.
func (e *Engine) handleProfileFlow(ctx context.Context, st *State, text string) []string {
	switch st.Step {
	case StepProfileName:
		name := extractName(text)
		if name == "" {
			return []string{"I didn't catch that. What's your full name?"}
		}
		st.Draft.Name = name
		st.Step = StepProfileEmail
		return []string{"Thanks! What's your email address?"}

	case StepProfileEmail:
		email := extractEmail(text)
		if email == "" {
			return []string{"That doesn't look like an email address. Could you try again?"}
		}
		st.Draft.Email = email
		st.Step = StepProfilePhone
		return []string{"Got it. And your phone number?"}

	default: // StepProfilePhone
		phone := extractPhone(text)
		if phone == "" {
			return []string{"That doesn't look like a phone number. Could you try again?"}
		}
		st.Draft.Phone = phone
		st.Step = StepMenu

		profile := st.Draft
		st.Draft = domain.Profile{}
		if err := e.repo.SetProfile(ctx, &profile); err != nil {
			slog.Error("Failed to save profile", "user_id", st.UserID, "error", err)
			return []string{"Sorry, I couldn't save your details just now. Please try /profile again later."}
		}
		return []string{fmt.Sprintf("Saved! I'll book under %s (%s, %s) from now on.", profile.Name, profile.Email, profile.Phone)}
	}
}

// forget erases everything held for the user: profile, pending booking,
// conversation state and any live browser session.
func (e *Engine) forget(ctx context.Context, userID string) []string {
	var failed bool
	if err := e.repo.DeleteProfile(ctx, userID); err != nil {
		slog.Error("Failed to delete profile", "user_id", userID, "error", err)
		failed = true
	}
	if err := e.repo.ClearPendingBooking(ctx, userID); err != nil {
		slog.Error("Failed to clear booking record", "user_id", userID, "error", err)
		failed = true
	}
	e.pool.Destroy(ctx, userID)
	e.states.drop(userID)

	if failed {
		return []string{"I've reset our conversation, but couldn't erase all stored data. Please try /forgetme again."}
	}
	return []string{"Done. I've erased your profile, any in-progress booking, and closed your browser session."}
}

func (e *Engine) appendHistory(ctx context.Context, userID, role, content string) {
	if err := e.repo.AppendHistory(ctx, userID, role, content); err != nil {
		slog.Warn("Failed to append chat history", "user_id", userID, "role", role, "error", err)
	}
}
