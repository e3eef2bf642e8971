package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the ontoma SDK client.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new ontoma client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			// Resolution may wait on remote services with retries.
			Timeout: 60 * time.Second,
		},
	}
}

// Resolve runs the daemon cascade for q.
func (c *Client) Resolve(ctx context.Context, q Query) (Resolution, error) {
	if q.Label == "" && q.Code == "" {
		return Resolution{}, fmt.Errorf("invalid query: label or code is required")
	}

	body, err := json.Marshal(q)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/resolve", bytes.NewReader(body))
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res Resolution
	if err := c.do(req, &res); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// LookupName matches name exactly against the canonical names of ontology ("efo" or "hp").
func (c *Client) LookupName(ctx context.Context, ontology, name string) (string, error) {
	v := url.Values{"ontology": {ontology}, "name": {name}}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, "/v1/lookup/name?"+v.Encode(), &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// LookupCode returns the curated targets of a coded identifier.
func (c *Client) LookupCode(ctx context.Context, system, code string) ([]string, error) {
	v := url.Values{"system": {system}, "code": {code}}
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.get(ctx, "/v1/lookup/code?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.get(ctx, "/v1/health", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// GetResolutions fetches recent resolutions from the daemon, newest first.
func (c *Client) GetResolutions(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []Event
	if err := c.get(ctx, "/v1/resolutions?limit="+strconv.Itoa(limit), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// do sends req and decodes a 200 answer into out, or an error body into *APIError.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("unexpected_status_%d", resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
