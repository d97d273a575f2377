package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultBaseURL = "https://api.dhan.co"

	defaultHTTPTimeout  = 10 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryAttempts    = 3
)

// Client issues authenticated requests against the DhanHQ REST API.
// Authentication is a static access-token header on every call.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *log.Logger
	clock       func() time.Time
}

// ClientOption customises the Dhan client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithBaseURL overrides the API base URL (primarily for testing).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithLogger attaches a custom logger (defaults to log.Default()).
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source (primarily for testing).
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient constructs a Dhan trading client using the provided access token.
func NewClient(accessToken string, opts ...ClientOption) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("dhan: access token is required")
	}
	client := &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:      log.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if client.logger == nil {
		client.logger = log.Default()
	}
	if client.clock == nil {
		client.clock = time.Now
	}
	return client, nil
}

// GetPositions fetches all open positions for the day.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.doGet(ctx, "/positions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrders fetches the order book for the day.
func (c *Client) GetOrders(ctx context.Context) ([]OrderStatus, error) {
	var out []OrderStatus
	if err := c.doGet(ctx, "/orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	var out OrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", order, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels a single resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("dhan: order id is required")
	}
	return c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil)
}

// ActivateKillSwitch asks the broker to disable trading for the day. The
// upstream call only succeeds once positions are flat and no orders are
// pending; callers square off first.
func (c *Client) ActivateKillSwitch(ctx context.Context) (*KillSwitchResponse, error) {
	var out KillSwitchResponse
	if err := c.do(ctx, http.MethodPost, "/killSwitch?killSwitchStatus=ACTIVATE", nil, &out); err != nil {
		return nil, err
	}
	if out.KillSwitchStatus != killSwitchActivated {
		return &out, fmt.Errorf("dhan: kill switch not activated, status %q", out.KillSwitchStatus)
	}
	return &out, nil
}

// doGet queries a read-only endpoint with bounded retries. GETs are
// idempotent; mutating calls go through do() and are never retried here
// because the risk engine owns retry-next-tick semantics.
func (c *Client) doGet(ctx context.Context, path string, result interface{}) error {
	backoff := defaultRetryBackoff
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		err := c.do(ctx, http.MethodGet, path, nil, result)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dhan: encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("dhan: build %s %s request: %w", method, path, err)
	}
	httpReq.Header.Set("access-token", c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("dhan: read %s %s response: %w", method, path, readErr)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("dhan: authentication failed, check access token")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= 300 {
		return fmt.Errorf("dhan: %s %s http status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("dhan: decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
