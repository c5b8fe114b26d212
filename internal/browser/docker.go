package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

const (
	// Container configuration.
	defaultImage    = "chromedp/headless-shell:latest"
	cdpPort         = 9222
	stopTimeoutSecs = 5

	// Resource limits per browser container.
	memoryLimitBytes = 768 * 1024 * 1024 // 768MB
	pidsLimit        = 256

	// Browser network configuration.
	browserNetwork = "concierge-browsers"
	browserSubnet  = "172.29.0.0/16"

	createRetryAttempts = 5
	createRetryDelay    = 250 * time.Millisecond
)

// DockerBackend runs one headless-chrome container per session for
// self-hosted deployments.
type DockerBackend struct {
	cli   *client.Client
	image string
}

// NewDockerBackend creates a Docker-backed browser backend and ensures the
// browser bridge network exists.
func NewDockerBackend(ctx context.Context) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	b := &DockerBackend{cli: cli, image: defaultImage}
	if err := b.ensureNetwork(ctx); err != nil {
		return nil, err
	}

	slog.Info("Docker browser backend initialized", "image", b.image)
	return b, nil
}

// Open starts a headless-chrome container for the user and returns a handle
// pointing at its CDP endpoint.
func (b *DockerBackend) Open(ctx context.Context, userID string) (*Handle, error) {
	containerName := fmt.Sprintf("browser-%s", userID)

	// A lingering named container from a crashed run must be recycled, not
	// reused: its browser state is unknown.
	if inspect, err := b.cli.ContainerInspect(ctx, containerName); err == nil {
		slog.Info("Found stale browser container, removing", "container_id", inspect.ID, "user_id", userID)
		if err := b.remove(ctx, inspect.ID); err != nil {
			slog.Warn("Failed to remove stale browser container", "container_id", inspect.ID, "error", err)
		}
	}

	config := &container.Config{
		Image: b.image,
		Cmd: []string{
			"--headless",
			"--disable-gpu",
			"--no-sandbox",
			fmt.Sprintf("--remote-debugging-port=%d", cdpPort),
			"--remote-debugging-address=0.0.0.0",
		},
	}
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(browserNetwork),
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = b.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
		if createErr == nil {
			break
		}

		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return nil, fmt.Errorf("create browser container: %w", createErr)
		}

		// A delayed cleanup can leave the old named container briefly.
		slog.Warn("Browser container name conflict, retrying",
			"user_id", userID, "container_name", containerName, "attempt", i+1)
		if inspect, inspectErr := b.cli.ContainerInspect(ctx, containerName); inspectErr == nil {
			if removeErr := b.remove(ctx, inspect.ID); removeErr != nil {
				slog.Warn("Failed to remove conflicting container before retry", "container_id", inspect.ID, "error", removeErr)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return nil, fmt.Errorf("create browser container after retries: %w", createErr)
	}

	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := b.remove(ctx, resp.ID); removeErr != nil {
			slog.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return nil, fmt.Errorf("start browser container %s: %w", resp.ID, err)
	}

	ip, err := b.containerIP(ctx, resp.ID)
	if err != nil {
		if removeErr := b.remove(ctx, resp.ID); removeErr != nil {
			slog.Warn("Failed to remove container after address lookup failure", "container_id", resp.ID, "error", removeErr)
		}
		return nil, err
	}

	slog.Info("Browser container started", "container_id", resp.ID, "user_id", userID)

	return &Handle{
		ID:     resp.ID,
		UserID: userID,
		CDPURL: fmt.Sprintf("ws://%s:%d", ip, cdpPort),
	}, nil
}

// Close stops and removes the browser container behind the handle.
func (b *DockerBackend) Close(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := b.remove(ctx, h.ID); err != nil {
		return err
	}
	slog.Info("Browser container removed", "container_id", h.ID, "user_id", h.UserID)
	return nil
}

// remove stops and force-removes a container. Idempotent.
func (b *DockerBackend) remove(ctx context.Context, containerID string) error {
	timeout := stopTimeoutSecs
	if err := b.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		slog.Debug("Container stop returned error, continuing to remove", "container_id", containerID, "error", err)
	}

	if err := b.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		return fmt.Errorf("remove browser container %s: %w", containerID, err)
	}
	return nil
}

// containerIP resolves the container's address on the browser network.
func (b *DockerBackend) containerIP(ctx context.Context, containerID string) (string, error) {
	inspect, err := b.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspect browser container %s: %w", containerID, err)
	}
	if ep, ok := inspect.NetworkSettings.Networks[browserNetwork]; ok && ep.IPAddress != "" {
		return ep.IPAddress, nil
	}
	return "", fmt.Errorf("browser container %s has no address on network %s", containerID, browserNetwork)
}

// ensureNetwork creates the bridge network for browser containers if it
// doesn't exist.
func (b *DockerBackend) ensureNetwork(ctx context.Context) error {
	networks, err := b.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, nw := range networks {
		if nw.Name == browserNetwork {
			return nil
		}
	}

	_, err = b.cli.NetworkCreate(ctx, browserNetwork, network.CreateOptions{
		Driver: "bridge",
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{{Subnet: browserSubnet}},
		},
	})
	if err != nil {
		return fmt.Errorf("create network %s: %w", browserNetwork, err)
	}
	slog.Info("Browser network created", "network", browserNetwork, "subnet", browserSubnet)
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
