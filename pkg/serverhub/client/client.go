// Package client is a small Go client for the ServerHub dataset API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type Client struct {
	baseURL     string
	application string
	httpClient  *http.Client
}

func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}, nil
}

// WithApplication sets the X-Application header sent with every request,
// recorded in the change journal for writes.
func (c *Client) WithApplication(name string) *Client {
	c.application = name
	return c
}

// Query selects objects by attribute filters.
type Query struct {
	Filters  map[string]any `json:"filters"`
	Restrict []string       `json:"restrict,omitempty"`
	OrderBy  string         `json:"order_by,omitempty"`
}

// AttributeChange is one attribute's old/new pair. New nil removes the
// value.
type AttributeChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Commit is a batch of deletions and attribute changes, applied
// atomically by the server.
type Commit struct {
	Deleted        []string                              `json:"deleted,omitempty"`
	Changes        map[string]map[string]AttributeChange `json:"changes,omitempty"`
	SkipValidation bool                                  `json:"skip_validation,omitempty"`
	ForceChanges   bool                                  `json:"force_changes,omitempty"`
}

// APIError is the error envelope the server returns.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// QueryServers runs a dataset query and returns the projected records.
func (c *Client) QueryServers(ctx context.Context, q Query) ([]map[string]any, error) {
	var resp struct {
		Result []map[string]any `json:"result"`
	}
	if err := c.post(ctx, "/api/v1/dataset/query", q, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// CommitChanges applies a commit batch.
func (c *Client) CommitChanges(ctx context.Context, commit Commit) error {
	return c.post(ctx, "/api/v1/dataset/commit", commit, nil)
}

// CreateServer creates one object and returns its stored projection.
func (c *Client) CreateServer(ctx context.Context, attributes map[string]any) (map[string]any, error) {
	req := map[string]any{"attributes": attributes}
	var resp struct {
		Result map[string]any `json:"result"`
	}
	if err := c.post(ctx, "/api/v1/dataset/create", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.application != "" {
		req.Header.Set("X-Application", c.application)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
