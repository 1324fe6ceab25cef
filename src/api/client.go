package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Client talks to the dashboard REST API: the reconciliation pull and the
// server side of notification mutations.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &fasthttp.Client{},
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// SetCredentials sets the bearer token presented on every request.
func (c *Client) SetCredentials(creds types.Credentials) {
	c.mu.Lock()
	c.token = creds.Token
	c.mu.Unlock()
}

// FetchNotifications pulls a page from the authoritative notification list.
func (c *Client) FetchNotifications(ctx context.Context, limit int) (types.Page, error) {
	var page types.Page
	path := fmt.Sprintf("/api/notifications?limit=%d", limit)
	if err := c.do(ctx, fasthttp.MethodGet, path, &page); err != nil {
		return types.Page{}, err
	}
	return page, nil
}

// MarkRead marks one notification read on the server.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/notifications/"+id+"/read", nil)
}

// MarkAllRead marks every notification read on the server.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/notifications/read-all", nil)
}

// Delete removes one notification on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/api/notifications/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, status)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
