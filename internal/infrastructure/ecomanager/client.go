package ecomanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// maxResponseSize is the maximum allowed response size from the EcoManager API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ---------------------------------------------------------------------------
// RateLimitedError
// ---------------------------------------------------------------------------

// RateLimitedError wraps ordersync.ErrRateLimited with the upstream's
// retry-after hint, when one was provided.
type RateLimitedError struct {
	// RetryAfter is the hinted wait before retrying, 0 when no hint was given
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ecomanager: rate limited, retry after %s", e.RetryAfter)
	}
	return "ecomanager: rate limited"
}

func (e *RateLimitedError) Unwrap() error {
	return ordersync.ErrRateLimited
}

// RetryAfterHint exposes the hinted wait to callers that only see the
// wrapped error chain.
func (e *RateLimitedError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// parseRetryAfter reads a Retry-After header value, seconds or HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client fetches order pages from the EcoManager API. It implements the
// ordersync.OrderSource port; every fetch passes through the rate governor
// before touching the network.
type Client struct {
	config     ClientConfig
	governor   ordersync.RateGovernor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new EcoManager API client.
func NewClient(config ClientConfig, governor ordersync.RateGovernor, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:   config,
		governor: governor,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// FetchPage fetches one page of orders for a store, newest-first.
func (c *Client) FetchPage(ctx context.Context, store *ordersync.StoreCredential, page int) (*ordersync.OrderPage, error) {
	if err := store.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	if err := c.governor.Acquire(ctx, store.Code); err != nil {
		return nil, err
	}

	req, err := c.buildRequest(ctx, store, page)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ordersync.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ordersync.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn("Upstream rate limited page fetch",
			zap.String("store_code", store.Code),
			zap.Int("page", page),
			zap.Duration("retry_after", retryAfter),
		)
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ordersync.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ordersync.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ordersync.ErrMalformedPage, resp.StatusCode)
	}

	var decoded orderListResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ordersync.ErrMalformedPage, err)
	}
	if decoded.Data == nil {
		return nil, fmt.Errorf("%w: missing data field", ordersync.ErrMalformedPage)
	}

	result := decoded.toOrderPage(page)
	c.logger.Debug("Fetched order page",
		zap.String("store_code", store.Code),
		zap.Int("page", result.Page),
		zap.Int("orders", len(result.Orders)),
		zap.Int64("first_id", result.FirstID()),
		zap.Int64("last_id", result.LastID()),
	)
	return result, nil
}

// buildRequest builds the authenticated page request.
func (c *Client) buildRequest(ctx context.Context, store *ordersync.StoreCredential, page int) (*http.Request, error) {
	endpoint, err := url.Parse(store.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ecomanager: invalid API base URL for store %s: %w", store.Code, err)
	}
	endpoint = endpoint.JoinPath("api", "orders")

	q := endpoint.Query()
	q.Set("per_page", strconv.Itoa(c.config.PageSize))
	q.Set("page", strconv.Itoa(page))
	q.Set("sort", "-id")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ecomanager: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+store.APIToken)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Ensure Client implements the domain port
var _ ordersync.OrderSource = (*Client)(nil)
