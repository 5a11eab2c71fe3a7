// Package remote talks to a watch server over HTTP. Its Client satisfies
// watch.Store, so a command line participant can share documents with
// browser clients through the server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"skidoodle/watchparty/internal/watch"
)

const requestTimeout = 5 * time.Second

// Client is an HTTP client for the watch API. Advancing and adding run on the
// server under its store's atomic update.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ watch.Store         = (*Client)(nil)
	_ watch.QueueAdvancer = (*Client)(nil)
	_ watch.Enqueuer      = (*Client)(nil)
)

// New creates a Client for the server at baseURL. A nil httpClient uses a
// client with a short timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) ReadQueue(ctx context.Context) ([]watch.QueueItem, error) {
	queue := []watch.QueueItem{}
	if err := c.do(ctx, http.MethodGet, "/api/queue", nil, &queue); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = []watch.QueueItem{}
	}
	return queue, nil
}

func (c *Client) WriteQueue(ctx context.Context, queue []watch.QueueItem) error {
	if queue == nil {
		queue = []watch.QueueItem{}
	}
	return c.do(ctx, http.MethodPut, "/api/queue", queue, nil)
}

func (c *Client) ReadNowPlaying(ctx context.Context) (watch.NowPlaying, error) {
	var np watch.NowPlaying
	if err := c.do(ctx, http.MethodGet, "/api/now-playing", nil, &np); err != nil {
		return watch.NowPlaying{}, err
	}
	return np, nil
}

func (c *Client) WriteNowPlaying(ctx context.Context, np watch.NowPlaying) error {
	return c.do(ctx, http.MethodPut, "/api/now-playing", np, nil)
}

// Activity returns the newest activity log entries first.
func (c *Client) Activity(ctx context.Context) ([]watch.ActivityEntry, error) {
	var entries []watch.ActivityEntry
	if err := c.do(ctx, http.MethodGet, "/api/log", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Advance asks the server to promote the queue head.
func (c *Client) Advance(ctx context.Context) (bool, error) {
	var out struct {
		Advanced bool `json:"advanced"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/advance", nil, &out); err != nil {
		return false, err
	}
	return out.Advanced, nil
}

// AdvanceFrom asks the server to promote the queue head if NowPlaying still
// equals observed.
func (c *Client) AdvanceFrom(ctx context.Context, observed watch.NowPlaying, user string) (bool, error) {
	in := struct {
		Observed watch.NowPlaying `json:"observed"`
		User     string           `json:"user"`
	}{observed, user}
	var out struct {
		Advanced bool `json:"advanced"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/advance", in, &out); err != nil {
		return false, err
	}
	return out.Advanced, nil
}

// Enqueue adds item on the server. A rejected duplicate is reported as
// watch.ErrAlreadyPlaying or watch.ErrAlreadyQueued.
func (c *Client) Enqueue(ctx context.Context, item watch.QueueItem) (*watch.NowPlaying, error) {
	var out struct {
		NowPlaying *watch.NowPlaying `json:"nowPlaying"`
	}
	err := c.do(ctx, http.MethodPost, "/api/queue/enqueue", item, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusConflict {
		return nil, conflict(se)
	}
	if err != nil {
		return nil, err
	}
	return out.NowPlaying, nil
}

func conflict(se *StatusError) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(se.Body), &body); err == nil {
		for _, sentinel := range []error{watch.ErrAlreadyPlaying, watch.ErrAlreadyQueued} {
			if body.Error == sentinel.Error() {
				return sentinel
			}
		}
	}
	return se
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}
