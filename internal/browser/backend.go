// Package browser provides backends that provision headless-browser
// instances for automation sessions.
package browser

import (
	"context"

	"github.com/coder/websocket"
)

// Handle is a live reference to one provisioned browser. The automation
// agent attaches to it through CDPURL; the handle is owned by the session
// pool and lent out for the duration of one call.
type Handle struct {
	ID     string // provider session ID or container ID
	UserID string
	CDPURL string

	// conn is the held CDP connection for provider-managed sessions.
	// The provider releases the remote browser when it closes.
	conn *websocket.Conn
}

// Backend provisions and releases browser instances.
type Backend interface {
	// Open provisions a browser for the user and returns a live handle.
	Open(ctx context.Context, userID string) (*Handle, error)

	// Close releases the browser behind the handle. It is idempotent.
	Close(ctx context.Context, h *Handle) error
}
