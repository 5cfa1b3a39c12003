package authsdk

import (
	"context"
	"net/http"
)

// Health calls the public /api/health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/api/health")
}

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service is ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
