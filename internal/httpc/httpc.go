// Package httpc holds the outbound HTTP policy shared by every upstream
// client: a user agent, a per-host request rate, a total timeout and bounded
// retries on transient failures.
package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 20 * time.Second
	defaultDelay   = 300 * time.Millisecond
	maxBodyBytes   = 4 << 20
	maxErrorBody   = 512
)

// Options configures NewClient.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Transport applies the user agent and per-host rate limit before handing the
// request to Base.
type Transport struct {
	Base      http.RoundTripper
	UserAgent string

	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTransport wraps base. A non-positive rps disables rate limiting.
func NewTransport(base http.RoundTripper, userAgent string, rps float64) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{Base: base, UserAgent: userAgent, limiters: make(map[string]*rate.Limiter)}
	if rps > 0 {
		t.rps = rate.Limit(rps)
		t.burst = int(rps)
		if t.burst < 1 {
			t.burst = 1
		}
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if limiter := t.limiter(req.URL.Host); limiter != nil {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
		r.Header.Set("User-Agent", t.UserAgent)
	}
	return t.Base.RoundTrip(r)
}

func (t *Transport) limiter(host string) *rate.Limiter {
	if t.rps <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limiters == nil {
		t.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[host] = l
	}
	return l
}

// NewClient builds the HTTP client used for all upstream calls.
func NewClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Transport: NewTransport(base, opts.UserAgent, opts.RequestsPerSecond),
		Timeout:   timeout,
	}
}

// StatusError is a non-2xx upstream reply.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether err is worth another attempt: rate limiting,
// server errors and network timeouts. Cancellation never is.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Caller issues requests for one upstream service and decodes JSON replies.
type Caller struct {
	HTTP    *http.Client
	Service string
	// Retries is the number of extra attempts after the first one.
	Retries int
	Delay   time.Duration
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// JSON performs the request built by newReq and decodes the body into out.
// out may be nil when the body is not needed.
func (c *Caller) JSON(ctx context.Context, newReq RequestFunc, out any) error {
	body, err := c.Bytes(ctx, newReq)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Service, err)
	}
	return nil
}

// Bytes performs the request built by newReq and returns the raw body.
func (c *Caller) Bytes(ctx context.Context, newReq RequestFunc) ([]byte, error) {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	delay := c.Delay
	if delay <= 0 {
		delay = defaultDelay
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := newReq(ctx)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("%s: read response: %w", c.Service, err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return &StatusError{Service: c.Service, StatusCode: resp.StatusCode, Body: truncate(data)}
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(retries+1)),
		retry.Delay(delay),
		retry.MaxDelay(5*time.Second),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[%s] attempt %d failed, retrying: %v", c.Service, n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody] + "..."
	}
	return text
}
