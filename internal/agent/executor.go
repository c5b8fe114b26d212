package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsavelyev/maitre/internal/session"
)

var (
	// ErrAutomationTimeout is returned when every attempt ran out of time.
	ErrAutomationTimeout = errors.New("automation timed out")
	// ErrAutomationFailed is returned when every attempt failed.
	ErrAutomationFailed = errors.New("automation failed")
)

// Runner executes one automation task. *Client implements it.
type Runner interface {
	Run(ctx context.Context, task Task) (*Result, error)
}

// Executor runs automation tasks against the user's pooled browser session,
// bounding each attempt with a timeout and retrying a limited number of
// times on the same session.
type Executor struct {
	pool       *session.Pool
	runner     Runner
	timeout    time.Duration
	maxRetries int
}

// NewExecutor creates an executor. maxRetries is the number of extra
// attempts after the first failure.
func NewExecutor(pool *session.Pool, runner Runner, timeout time.Duration, maxRetries int) *Executor {
	return &Executor{
		pool:       pool,
		runner:     runner,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// Execute acquires the user's browser session, runs the task and releases
// the session. A session that saw the task through is returned to the pool;
// one behind a failed run is destroyed, since its browser state is unknown.
// Acquisition errors (session.ErrSessionBusy, session.ErrCapacityExceeded)
// pass through unwrapped.
func (e *Executor) Execute(ctx context.Context, task Task) (*Result, error) {
	sess, err := e.pool.Acquire(ctx, task.UserID)
	if err != nil {
		return nil, err
	}
	task.CDPURL = sess.Handle.CDPURL

	var lastErr error
	attempts := e.maxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		result, err := e.runner.Run(callCtx, task)
		cancel()

		if err == nil {
			e.pool.Release(sess, session.OutcomeReusable)
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Parent cancelled or expired. Retrying can't help.
			break
		}
		if attempt < attempts {
			slog.Warn("Automation attempt failed, retrying",
				"type", task.Type,
				"user_id", task.UserID,
				"attempt", attempt,
				"error", err,
			)
		}
	}

	e.pool.Release(sess, session.OutcomeUnrecoverable)

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s task for %s", ErrAutomationTimeout, task.Type, task.UserID)
	}
	return nil, fmt.Errorf("%w: %s task for %s: %v", ErrAutomationFailed, task.Type, task.UserID, lastErr)
}
