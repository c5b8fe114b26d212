package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nsavelyev/maitre/internal/ai"
)

func TestDispatcher_BusyLaneDefersDuplicate(t *testing.T) {
	model := &fakeModel{intent: ai.IntentSearch}
	exec := &fakeExec{block: make(chan struct{})}
	eng, _, _ := newTestEngine(model, exec)
	d := NewDispatcher(eng)
	ctx := context.Background()

	first := make(chan []string, 1)
	go func() {
		first <- d.Handle(ctx, "u1", "Check Yardbird tomorrow for 2")
	}()

	// Wait for the first message to reach the blocked executor.
	deadline := time.After(2 * time.Second)
	for exec.taskCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first message never reached the executor")
		case <-time.After(5 * time.Millisecond):
		}
	}

	replies := d.Handle(ctx, "u1", "are you there?")
	if len(replies) != 1 || !strings.Contains(replies[0], "still working") {
		t.Fatalf("duplicate message should get a deferral notice, got %v", replies)
	}

	close(exec.block)
	select {
	case r := <-first:
		if len(r) == 0 {
			t.Error("first message lost its reply")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first message never completed")
	}
}

func TestDispatcher_CancelBypassesLane(t *testing.T) {
	model := &fakeModel{intent: ai.IntentSearch}
	exec := &fakeExec{block: make(chan struct{})}
	eng, _, _ := newTestEngine(model, exec)
	d := NewDispatcher(eng)
	ctx := context.Background()

	first := make(chan []string, 1)
	go func() {
		first <- d.Handle(ctx, "u1", "Check Yardbird tomorrow for 2")
	}()

	deadline := time.After(2 * time.Second)
	for exec.taskCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first message never reached the executor")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Cancellation lands immediately, even mid-automation.
	replies := d.Handle(ctx, "u1", "/cancel")
	if len(replies) != 1 || !strings.Contains(strings.ToLower(replies[0]), "cancel") {
		t.Fatalf("cancel should be acknowledged immediately, got %v", replies)
	}

	// The in-flight call's result is discarded, not delivered.
	close(exec.block)
	select {
	case r := <-first:
		if r != nil {
			t.Errorf("stale result delivered after cancel: %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first message never completed")
	}

	if st := eng.states.get("u1"); st.Step != StepMenu {
		t.Errorf("step = %v, want menu after cancel", st.Step)
	}
}

func TestDispatcher_IndependentUsersRunConcurrently(t *testing.T) {
	model := &fakeModel{intent: ai.IntentSearch}
	exec := &fakeExec{block: make(chan struct{})}
	eng, _, _ := newTestEngine(model, exec)
	d := NewDispatcher(eng)
	ctx := context.Background()

	go d.Handle(ctx, "u1", "Check Yardbird tomorrow for 2")

	deadline := time.After(2 * time.Second)
	for exec.taskCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first message never reached the executor")
		case <-time.After(5 * time.Millisecond):
		}
	}
	defer close(exec.block)

	// Another user's lane is unaffected.
	done := make(chan []string, 1)
	go func() {
		done <- d.Handle(ctx, "u2", "/help")
	}()
	select {
	case replies := <-done:
		if len(replies) == 0 {
			t.Error("second user got no reply")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second user blocked behind the first user's lane")
	}
}

func TestIsCancel(t *testing.T) {
	for _, text := range []string{"/cancel", "cancel", " CANCEL ", "/CANCEL"} {
		if !isCancel(text) {
			t.Errorf("isCancel(%q) = false", text)
		}
	}
	for _, text := range []string{"/start", "cancel my plans", ""} {
		if isCancel(text) {
			t.Errorf("isCancel(%q) = true", text)
		}
	}
}
