// Package meetingclient fetches meeting names from a running PMaaS server,
// pacing requests so a well-behaved caller never hits the server quota.
package meetingclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reconquest/karma-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/ratelimit"

	"github.com/keithlinneman/pmaas/internal/meetinghttp"
)

// DefaultPace matches the server quota of five requests a minute.
const DefaultPace = meetinghttp.QuotaLimit

// DefaultTimeout bounds one request once the pacer has released it.
const DefaultTimeout = 10 * time.Second

const maxResponseSize = 16 << 10

// QuotaExceededError is returned when the server answers 429.
type QuotaExceededError struct {
	Reason     string
	Message    string
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	msg := "cut off: " + e.Reason
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// StatusError is any other non-200 answer.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Reason)
}

type Client struct {
	endpoint  string
	http      *http.Client
	limiter   ratelimit.Limiter
	timeout   time.Duration
	userAgent string
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPace sets requests per minute. Zero or less disables pacing.
func WithPace(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = ratelimit.NewUnlimited()
			return
		}
		// no slack: an idle client must not burst past the server quota
		c.limiter = ratelimit.New(perMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack)
	}
}

// WithTimeout bounds each request. The time spent waiting on the pacer does
// not count. Zero or less leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, karma.Format(err, "parse server url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, karma.Describe("url", baseURL).Format(nil, "server url must be http or https")
	}
	if u.Host == "" {
		return nil, karma.Describe("url", baseURL).Format(nil, "server url has no host")
	}

	c := &Client{
		endpoint: u.JoinPath("meeting").String(),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout:   DefaultTimeout,
		userAgent: "pmaas-client",
	}
	WithPace(DefaultPace)(c)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Meeting fetches one name. It blocks until the pacer allows a request or
// ctx is done.
func (c *Client) Meeting(ctx context.Context) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", karma.Format(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", karma.Format(err, "get %s", c.endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", karma.Format(err, "read response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out meetinghttp.MeetingResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return "", karma.Format(err, "decode meeting response")
		}
		if out.MeetingName == "" {
			return "", karma.Format(nil, "server returned an empty meeting name")
		}
		return out.MeetingName, nil
	case http.StatusTooManyRequests:
		var e meetinghttp.ErrorResponse
		_ = json.Unmarshal(body, &e)
		return "", &QuotaExceededError{
			Reason:     e.Error,
			Message:    e.Message,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		var e meetinghttp.ErrorResponse
		_ = json.Unmarshal(body, &e)
		return "", &StatusError{Code: resp.StatusCode, Reason: e.Error}
	}
}

// Meetings fetches n names in sequence and returns the ones received before
// the first error.
func (c *Client) Meetings(ctx context.Context, n int) ([]string, error) {
	names := make([]string, 0, n)
	for range n {
		name, err := c.Meeting(ctx)
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

// wait returns once the pacer releases a slot. A slot taken after ctx is
// done is left unused.
func (c *Client) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	released := make(chan struct{})
	go func() {
		c.limiter.Take()
		close(released)
	}()
	select {
	case <-released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
