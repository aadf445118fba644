// Package client provides an HTTP client for the labelq server, used by the
// CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/tberndt/labelq/internal/metrics"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

// Client talks to the labelq HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, uses LABELQ_SERVER_URL or
// defaults to localhost:8585. The bearer token comes from LABELQ_TOKEN.
// Timeout can be configured via LABELQ_CLIENT_TIMEOUT.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("LABELQ_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("LABELQ_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: endpoint,
		token:   os.Getenv("LABELQ_TOKEN"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode  int
	Message     string
	Holder      string
	HolderSince string
}

func (e *APIError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("server returned %d: %s (held by %s)", e.StatusCode, e.Message, e.Holder)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type errorPayload struct {
	Error       string  `json:"error"`
	Holder      string  `json:"holder,omitempty"`
	HolderSince *string `json:"holder_since,omitempty"`
}

// do sends one JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var payload errorPayload
		if json.Unmarshal(respBody, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Holder = payload.Holder
			if payload.HolderSince != nil {
				apiErr.HolderSince = *payload.HolderSince
			}
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

type itemsEnvelope struct {
	Items []models.WorkItem `json:"items"`
}

// Sample proposes candidates without claiming them.
func (c *Client) Sample(ctx context.Context, limit int, exclude []string) ([]models.WorkItem, error) {
	var result itemsEnvelope
	err := c.do(ctx, http.MethodPost, "/api/sample", map[string]any{
		"limit":   limit,
		"exclude": exclude,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Claim claims one item by key.
func (c *Client) Claim(ctx context.Context, key string, force bool) (*models.WorkItem, error) {
	var item models.WorkItem
	err := c.do(ctx, http.MethodPost, "/api/claim", map[string]any{
		"key":   key,
		"force": force,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ClaimBatch samples and claims up to limit items.
func (c *Client) ClaimBatch(ctx context.Context, limit int) ([]models.WorkItem, error) {
	var result itemsEnvelope
	err := c.do(ctx, http.MethodPost, "/api/claim", map[string]any{
		"limit": limit,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// Release returns an item to the pool.
func (c *Client) Release(ctx context.Context, key string) (*models.WorkItem, error) {
	var item models.WorkItem
	err := c.do(ctx, http.MethodPost, "/api/release", map[string]any{
		"key": key,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Transition moves an item to approved, deleted or skipped.
func (c *Client) Transition(ctx context.Context, key, status string) (*models.WorkItem, error) {
	var item models.WorkItem
	err := c.do(ctx, http.MethodPost, "/api/release", map[string]any{
		"key":    key,
		"status": status,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListOptions configures backlog listing.
type ListOptions struct {
	Statuses   []string
	Dataset    string
	AssignedTo string
	Unassigned bool
	Tags       []string
	Text       string
	Sort       string
	Desc       bool
	Page       int
	PageSize   int
}

// ListResult is one page of the backlog.
type ListResult struct {
	Items    []models.WorkItem `json:"items"`
	PageInfo store.PageInfo    `json:"page_info"`
}

// ListItems returns a filtered, sorted backlog page.
func (c *Client) ListItems(ctx context.Context, opts ListOptions) (*ListResult, error) {
	params := url.Values{}
	for _, s := range opts.Statuses {
		params.Add("status", s)
	}
	if opts.Dataset != "" {
		params.Set("dataset", opts.Dataset)
	}
	if opts.AssignedTo != "" {
		params.Set("assigned_to", opts.AssignedTo)
	}
	if opts.Unassigned {
		params.Set("unassigned", "true")
	}
	for _, tag := range opts.Tags {
		params.Add("tag", tag)
	}
	if opts.Text != "" {
		params.Set("q", opts.Text)
	}
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	if opts.Desc {
		params.Set("desc", "true")
	}
	if opts.Page > 0 {
		params.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(opts.PageSize))
	}

	path := "/api/items"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns the server's in-memory runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
