// Package convex is a thin client for the Convex function API, used to
// mirror session artifacts into a Convex deployment.
package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one function call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Client calls functions on one Convex deployment.
type Client struct {
	deploymentURL string
	client        *http.Client
}

// NewClient returns a client for the given deployment URL
// (e.g. https://happy-animal-123.convex.cloud).
func NewClient(deploymentURL string, timeout time.Duration) (*Client, error) {
	if deploymentURL == "" {
		return nil, fmt.Errorf("convex deployment URL is empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		deploymentURL: strings.TrimRight(deploymentURL, "/"),
		client:        &http.Client{Timeout: timeout},
	}, nil
}

// functionRequest is the Convex HTTP function-call envelope.
type functionRequest struct {
	Path   string `json:"path"`
	Args   any    `json:"args"`
	Format string `json:"format"`
}

// functionResponse is the Convex HTTP function-call result envelope.
type functionResponse struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
}

// Mutation runs a mutation function and returns its raw result value.
func (c *Client) Mutation(ctx context.Context, path string, args any) (json.RawMessage, error) {
	return c.call(ctx, "mutation", path, args)
}

// Query runs a query function and returns its raw result value.
func (c *Client) Query(ctx context.Context, path string, args any) (json.RawMessage, error) {
	return c.call(ctx, "query", path, args)
}

func (c *Client) call(ctx context.Context, kind, path string, args any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(functionRequest{Path: path, Args: args, Format: "json"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s args: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.deploymentURL+"/api/"+kind, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("convex request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("convex returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result functionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("convex %s %s failed: %s", kind, path, result.ErrorMessage)
	}
	return result.Value, nil
}
