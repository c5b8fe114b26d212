package conversation

import (
	"context"
	"strings"
	"sync"
)

// Dispatcher serializes message handling per user. A message arriving while
// the user's previous one is still being handled is answered with a short
// notice instead of being queued, so two messages can never interleave
// against the same conversation state. Cancellation bypasses the lane: it
// must take effect even while an automation call is in flight.
type Dispatcher struct {
	engine *Engine

	mu    sync.Mutex
	lanes map[string]*sync.Mutex
}

// NewDispatcher wraps an engine with per-user serialization.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		lanes:  make(map[string]*sync.Mutex),
	}
}

// Handle processes one inbound message and returns the replies.
func (d *Dispatcher) Handle(ctx context.Context, userID, text string) []string {
	if isCancel(text) {
		return d.engine.Cancel(ctx, userID)
	}

	lane := d.lane(userID)
	if !lane.TryLock() {
		return []string{"One moment, I'm still working on your previous message."}
	}
	defer lane.Unlock()

	return d.engine.Respond(ctx, userID, text)
}

func (d *Dispatcher) lane(userID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lane, ok := d.lanes[userID]
	if !ok {
		lane = &sync.Mutex{}
		d.lanes[userID] = lane
	}
	return lane
}

func isCancel(text string) bool {
	text = strings.TrimSpace(text)
	return strings.EqualFold(text, "/cancel") || strings.EqualFold(text, "cancel")
}
