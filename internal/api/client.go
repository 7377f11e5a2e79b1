package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bryanchriswhite/FocusVibrance/internal/apps"
)

// ErrNotFound is returned by the client for 404 responses.
var ErrNotFound = errors.New("not found")

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon listening on port
func NewClient(port int) *Client {
	return NewClientURL(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// NewClientURL creates a client for baseURL
func NewClientURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is 'focusvibrance serve' running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
		}
		return errors.New(e.Error)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Health checks that the daemon is up
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var h HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

// ToggleProcess adds or removes pid. A nil target uses the daemon default.
func (c *Client) ToggleProcess(ctx context.Context, pid string, target *int) (ToggleResponse, error) {
	var resp ToggleResponse
	err := c.do(ctx, http.MethodPost, "/api/processes", ToggleRequest{PID: pid, Target: target}, &resp)
	return resp, err
}

// Processes lists tracked processes
func (c *Client) Processes(ctx context.Context) ([]apps.Entry, error) {
	var entries []apps.Entry
	err := c.do(ctx, http.MethodGet, "/api/processes", nil, &entries)
	return entries, err
}

// Process looks up one tracked process. It returns ErrNotFound when pid
// is not tracked.
func (c *Client) Process(ctx context.Context, pid string) (apps.Entry, error) {
	var e apps.Entry
	err := c.do(ctx, http.MethodGet, "/api/processes/"+url.PathEscape(pid), nil, &e)
	return e, err
}
