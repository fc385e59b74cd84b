// Package httpclient wraps outbound provider API calls with retry,
// rate-limit-aware waiting, and link-based pagination.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/devsignal-systems/devsignal/internal/metrics"
)

const (
	defaultMaxRetries        = 3
	defaultInitialRetryDelay = 1 * time.Second
	defaultMaxRetryDelay     = 30 * time.Second
	// rateLimitMargin is added on top of the provider's reset time so a
	// retry does not land on the exact boundary.
	rateLimitMargin = 2 * time.Second
)

// ErrRetriesExhausted wraps the last failure after the retry budget is
// spent.
type ErrRetriesExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("upstream call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrRetriesExhausted) Unwrap() error { return e.Last }

// Client executes provider API requests. Transient failures (network
// errors, 5xx) retry with exponential backoff up to the retry ceiling.
// Rate-limit responses wait until the provider's reset time plus a
// margin and retry without consuming the budget.
type Client struct {
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxRetries sets the retry ceiling for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// New creates a rate-limit-aware retrying client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultInitialRetryDelay,
		maxDelay:   defaultMaxRetryDelay,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one provider API call. Body is held as bytes so the
// request can be rebuilt for each retry.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	// Provider labels the metrics for this call.
	Provider string
}

// Response is the collected result of a provider API call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes the request with the retry and rate-limit policy.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	delay := c.baseDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		resp, err := c.doOnce(ctx, req)
		if err != nil {
			// Network-level failure: transient, counts against the budget.
			lastErr = err
			continue
		}

		if wait, limited := rateLimitWait(resp, c.now()); limited {
			// Quota exhaustion is not a transient failure; waiting out
			// the window does not consume the retry budget.
			metrics.ProviderRateLimitWaits.Inc()
			if err := c.sleep(ctx, wait+rateLimitMargin); err != nil {
				return nil, err
			}
			attempt--
			delay = c.baseDelay
			continue
		}

		metrics.ProviderAPICallsTotal.WithLabelValues(req.Provider, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, &ErrRetriesExhausted{Attempts: c.maxRetries + 1, Last: lastErr}
}

// GetAll fetches every page reachable from the request URL by following
// Link rel="next" headers, returning the raw page bodies in order.
func (c *Client) GetAll(ctx context.Context, req *Request) ([][]byte, error) {
	var pages [][]byte
	next := req.URL

	for next != "" {
		pageReq := &Request{
			Method:   http.MethodGet,
			URL:      next,
			Header:   req.Header,
			Provider: req.Provider,
		}
		resp, err := c.Do(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("pagination fetch returned status %d", resp.StatusCode)
		}

		pages = append(pages, resp.Body)
		next = nextLink(resp.Header.Get("Link"))
	}

	return pages, nil
}

func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
	}, nil
}

// rateLimitWait inspects a response for provider quota exhaustion and
// returns how long to wait before retrying.
func rateLimitWait(resp *Response, now time.Time) (time.Duration, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}

	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
			if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
				wait := time.Unix(epoch, 0).Sub(now)
				if wait < 0 {
					wait = 0
				}
				return wait, true
			}
		}
	}

	// 429 without an explicit reset still signals rate limiting.
	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitMargin, true
	}

	return 0, false
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextLink extracts the rel="next" URL from a Link header, or "" when
// there is no further page.
func nextLink(header string) string {
	m := nextLinkRe.FindStringSubmatch(header)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
