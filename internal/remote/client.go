// Package remote is the client side of the remote document store contract:
// apply a mutation, or probe for reachability. Everything else about the
// remote's internals is opaque to the sync core.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rollcall-app/rollcall/internal/models"
)

// Client talks to a rollcall-remote server over HTTP.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
}

// NewClient creates a Client. deviceID identifies this device in the
// remote's presence tracking.
func NewClient(baseURL, deviceID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
	}
}

type applyRequest struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
}

// Apply sends one mutation. Any transport failure or non-2xx response is an
// error; the sync engine treats it as transient and retries.
func (c *Client) Apply(ctx context.Context, collection string, op models.Operation, payload json.RawMessage) error {
	body, err := json.Marshal(applyRequest{
		Collection: collection,
		Operation:  string(op),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal apply request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/apply", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build apply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", c.deviceID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach remote store: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote store rejected %s %s: status %d", op, collection, resp.StatusCode)
	}
	return nil
}

// Ping probes the remote's health endpoint. The connectivity monitor uses
// this as its reachability signal.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote store unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote store unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
