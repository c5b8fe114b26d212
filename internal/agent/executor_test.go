package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nsavelyev/maitre/internal/browser"
	"github.com/nsavelyev/maitre/internal/session"
)

type stubBackend struct {
	mu     sync.Mutex
	opened int
}

func (b *stubBackend) Open(_ context.Context, userID string) (*browser.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return &browser.Handle{
		ID:     fmt.Sprintf("h-%d", b.opened),
		UserID: userID,
		CDPURL: fmt.Sprintf("ws://browser-%d:9222", b.opened),
	}, nil
}

func (b *stubBackend) Close(context.Context, *browser.Handle) error { return nil }

// scriptedRunner returns the queued errors in order, then succeeds.
type scriptedRunner struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	cdpURLs []string
	block   bool
}

func (r *scriptedRunner) Run(ctx context.Context, task Task) (*Result, error) {
	r.mu.Lock()
	r.calls++
	r.cdpURLs = append(r.cdpURLs, task.CDPURL)
	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = r.errs[1:]
	}
	block := r.block
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &Result{Output: "19:00, 19:30 and 21:00 are open"}, nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestExecutor(runner Runner, timeout time.Duration, maxRetries int) (*Executor, *session.Pool) {
	pool := session.NewPool(&stubBackend{}, 10, 15*time.Minute)
	return NewExecutor(pool, runner, timeout, maxRetries), pool
}

func TestExecute_Success(t *testing.T) {
	runner := &scriptedRunner{}
	exec, pool := newTestExecutor(runner, time.Second, 2)

	res, err := exec.Execute(context.Background(), Task{Type: ActionSearch, UserID: "u1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output == "" {
		t.Error("empty result output")
	}
	if runner.callCount() != 1 {
		t.Errorf("runner called %d times, want 1", runner.callCount())
	}
	// Session survives a successful run.
	if !pool.Has("u1") {
		t.Error("session not returned to pool after success")
	}
	if _, err := pool.Acquire(context.Background(), "u1"); err != nil {
		t.Errorf("session not idle after release: %v", err)
	}
}

func TestExecute_RetriesSameSession(t *testing.T) {
	runner := &scriptedRunner{errs: []error{errors.New("page failed to load")}}
	exec, _ := newTestExecutor(runner, time.Second, 2)

	if _, err := exec.Execute(context.Background(), Task{Type: ActionSearch, UserID: "u1"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if runner.callCount() != 2 {
		t.Fatalf("runner called %d times, want 2", runner.callCount())
	}
	if runner.cdpURLs[0] != runner.cdpURLs[1] {
		t.Errorf("retry switched sessions: %s then %s", runner.cdpURLs[0], runner.cdpURLs[1])
	}
}

func TestExecute_ExhaustedRetriesDestroysSession(t *testing.T) {
	boom := errors.New("form submission rejected")
	runner := &scriptedRunner{errs: []error{boom, boom, boom}}
	exec, pool := newTestExecutor(runner, time.Second, 2)

	_, err := exec.Execute(context.Background(), Task{Type: ActionBooking, UserID: "u1"})
	if !errors.Is(err, ErrAutomationFailed) {
		t.Fatalf("Execute = %v, want ErrAutomationFailed", err)
	}
	if runner.callCount() != 3 {
		t.Errorf("runner called %d times, want 3", runner.callCount())
	}
	if pool.Has("u1") {
		t.Error("failed session should have been destroyed")
	}
}

func TestExecute_Timeout(t *testing.T) {
	runner := &scriptedRunner{block: true}
	exec, pool := newTestExecutor(runner, 20*time.Millisecond, 1)

	_, err := exec.Execute(context.Background(), Task{Type: ActionSearch, UserID: "u1"})
	if !errors.Is(err, ErrAutomationTimeout) {
		t.Fatalf("Execute = %v, want ErrAutomationTimeout", err)
	}
	if runner.callCount() != 2 {
		t.Errorf("runner called %d times, want 2 (timeouts are retried)", runner.callCount())
	}
	if pool.Has("u1") {
		t.Error("timed-out session should have been destroyed")
	}
}

func TestExecute_ParentCancelStopsRetries(t *testing.T) {
	runner := &scriptedRunner{block: true}
	exec, _ := newTestExecutor(runner, time.Minute, 5)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, Task{Type: ActionSearch, UserID: "u1"})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if runner.callCount() != 1 {
		t.Errorf("runner called %d times after parent cancel, want 1", runner.callCount())
	}
}

func TestExecute_BusySessionPassesThrough(t *testing.T) {
	runner := &scriptedRunner{}
	exec, pool := newTestExecutor(runner, time.Second, 2)

	// Hold the user's session so the executor can't acquire it.
	if _, err := pool.Acquire(context.Background(), "u1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err := exec.Execute(context.Background(), Task{Type: ActionSearch, UserID: "u1"})
	if !errors.Is(err, session.ErrSessionBusy) {
		t.Fatalf("Execute = %v, want ErrSessionBusy", err)
	}
	if runner.callCount() != 0 {
		t.Errorf("runner called %d times for a busy session, want 0", runner.callCount())
	}
}
