// Package docker is the Runtime (RT) sandbox backend: it runs one
// compile or execute step inside an ephemeral, resource-limited
// container and reports back exit code, captured output, and whether
// the container was killed for exceeding its limits.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Client wraps the Docker Engine API client used to create, run, and
// tear down sandbox containers.
type Client struct {
	cli *client.Client
}

// NewClient connects to the Docker daemon at host (empty uses the
// DOCKER_HOST environment convention via client.FromEnv).
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Ping verifies the daemon is reachable, used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.cli.Close()
}
