// Package labclient is the HTTP/JSON client for the lab simulator backend.
package labclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/martinsuchenak/labconsole/internal/metrics"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// DefaultSessionCookie is the cookie name used when SessionCookie has no name.
const DefaultSessionCookie = "session"

var (
	// ErrInvalidResponse is returned when the backend answers with something
	// other than JSON, typically a login redirect or an HTML error page.
	ErrInvalidResponse = errors.New("Invalid response")
)

// StatusError is a non-2xx response without a JSON body.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// BackendError is a failure reported by the backend in a JSON body.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// Options configures a Client.
type Options struct {
	BaseURL string
	// SessionCookie is "value" or "name=value"; it is seeded into the jar so
	// every call is made with the user's credentials.
	SessionCookie string
	Timeout       time.Duration
	// RateLimit caps requests per second; 0 disables the limiter.
	RateLimit  float64
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client talks to one backend. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

// New creates a client with a cookie jar bound to the backend origin.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}
	if opts.SessionCookie != "" {
		name, value := DefaultSessionCookie, opts.SessionCookie
		if n, v, ok := strings.Cut(opts.SessionCookie, "="); ok {
			name, value = n, v
		}
		httpClient.Jar.SetCookies(base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	}

	c := &Client{
		base:       base,
		httpClient: httpClient,
		timeout:    opts.Timeout,
		metrics:    opts.Metrics,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func labPath(labID string, segments ...string) string {
	parts := []string{"/api/lab", url.PathEscape(labID)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// doJSON sends payload (if any) and decodes the JSON response into out. The
// body is decoded whatever the status; the status is returned so callers can
// tell backend-reported failures from successes.
func (c *Client) doJSON(ctx context.Context, endpoint, method, path string, payload, out any) (status int, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidResponse):
				outcome = "invalid_response"
			default:
				var se *StatusError
				if errors.As(err, &se) {
					outcome = "http_error"
				} else {
					outcome = "transport_error"
				}
			}
		} else if status >= 400 {
			outcome = "backend_error"
		}
		c.metrics.ObserveRequest(endpoint, outcome, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return 0, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 || json.Unmarshal(data, out) != nil {
		if resp.StatusCode >= 400 {
			return resp.StatusCode, &StatusError{Status: resp.StatusCode}
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %w", method, path, ErrInvalidResponse)
	}
	return resp.StatusCode, nil
}

// Result is the acknowledgement returned by mutating endpoints.
type Result struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Message returns the backend's error text, or "unknown".
func (r *Result) Message() string {
	switch {
	case r.Error != "":
		return r.Error
	case len(r.Errors) > 0:
		return strings.Join(r.Errors, "; ")
	default:
		return "unknown"
	}
}

// Err converts an unsuccessful result into a *BackendError.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return &BackendError{Message: r.Message()}
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload any) (*Result, error) {
	var res Result
	status, err := c.doJSON(ctx, endpoint, http.MethodPost, path, payload, &res)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		res.Success = false
	}
	return &res, nil
}
