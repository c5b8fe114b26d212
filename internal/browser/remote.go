package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const remoteRequestTimeout = 30 * time.Second

// RemoteBackend provisions browser sessions from a hosted provider
// (browserless-compatible API). A session stays alive for as long as its
// CDP websocket connection is held open.
type RemoteBackend struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewRemoteBackend creates a backend against a hosted browser provider.
func NewRemoteBackend(baseURL, apiKey string) *RemoteBackend {
	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: remoteRequestTimeout},
	}
}

type createSessionRequest struct {
	UserRef string `json:"user_ref"`
}

type createSessionResponse struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connect_url"`
}

// Open provisions a remote browser session and dials its CDP endpoint.
func (b *RemoteBackend) Open(ctx context.Context, userID string) (*Handle, error) {
	body, err := json.Marshal(createSessionRequest{UserRef: userID})
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create browser session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("create browser session: provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if created.ID == "" || created.ConnectURL == "" {
		return nil, fmt.Errorf("create browser session: provider response missing id or connect_url")
	}

	// Holding the CDP connection is what keeps the provider session alive.
	conn, _, err := websocket.Dial(ctx, created.ConnectURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + b.apiKey}},
	})
	if err != nil {
		b.deleteSession(created.ID)
		return nil, fmt.Errorf("dial browser session %s: %w", created.ID, err)
	}

	slog.Info("Remote browser session opened", "session_id", created.ID, "user_id", userID)

	return &Handle{
		ID:     created.ID,
		UserID: userID,
		CDPURL: created.ConnectURL,
		conn:   conn,
	}, nil
}

// Close releases the remote session: the held connection is dropped and the
// provider-side session is deleted.
func (b *RemoteBackend) Close(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if h.conn != nil {
		if err := h.conn.Close(websocket.StatusNormalClosure, "session released"); err != nil {
			slog.Debug("CDP connection close returned error", "session_id", h.ID, "error", err)
		}
		h.conn = nil
	}
	b.deleteSession(h.ID)
	slog.Info("Remote browser session closed", "session_id", h.ID, "user_id", h.UserID)
	return nil
}

// deleteSession best-effort removes the provider-side session record.
// A missing session is fine: the provider reaps on disconnect too.
func (b *RemoteBackend) deleteSession(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/v1/sessions/"+id, nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpc.Do(req)
	if err != nil {
		slog.Debug("Provider session delete failed", "session_id", id, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		slog.Debug("Provider session delete rejected", "session_id", id, "status", resp.StatusCode)
	}
}
