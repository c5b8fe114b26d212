package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	errAgentNotReady = errors.New("automation service not ready")
	errTaskRejected  = errors.New("automation service rejected task")
)

// Client is an HTTP client to the browser automation service.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// ClientConfig holds configuration for the automation client.
type ClientConfig struct {
	Address        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 120 * time.Second,
	}
}

// NewClient creates a client to the automation service and probes its health
// endpoint so a bad endpoint fails at startup, not on the first user request.
func NewClient(addr string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultClientConfig()
	cfg.Address = addr

	baseURL := strings.TrimRight(cfg.Address, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := c.waitForReady(ctx); err != nil {
		return nil, fmt.Errorf("automation service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to automation service", "address", cfg.Address)
	return c, nil
}

// waitForReady polls the health endpoint until it answers or ctx expires.
func (c *Client) waitForReady(ctx context.Context) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %s", errAgentNotReady, err)
			}
			return errAgentNotReady
		case <-time.After(250 * time.Millisecond):
		}
	}
}

type taskResponse struct {
	Output               string `json:"output"`
	ConfirmationRequired bool   `json:"confirmation_required"`
	Error                string `json:"error,omitempty"`
}

// Run submits a task and waits for its result. The caller bounds the wait
// through ctx.
func (c *Client) Run(ctx context.Context, task Task) (*Result, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run %s task: %w", task.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", errTaskRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode task response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", errTaskRejected, out.Error)
	}

	c.logger.Debug("Automation task completed",
		"type", task.Type,
		"user_id", task.UserID,
		"duration", time.Since(start),
	)

	return &Result{
		Output:               out.Output,
		ConfirmationRequired: out.ConfirmationRequired,
	}, nil
}
