// Package upstream fetches playlists and segments from origin CDNs. Each
// origin host gets its own circuit breaker so one failing CDN does not slow
// down the others.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("upstream circuit open")

// StatusError marks a 5xx answer. It counts as a breaker failure but the
// response is still relayed to the caller.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

type BreakerSettings struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

type Client struct {
	HTTP      *http.Client
	UserAgent string
	Log       *zap.Logger

	settings BreakerSettings
	breakers *xsync.Map[string, *gobreaker.CircuitBreaker]
}

func New(timeout time.Duration, userAgent string, settings BreakerSettings, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	// timeout bounds the wait for response headers only; body streaming is
	// bounded by the request context.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Client{
		HTTP:      &http.Client{Transport: transport},
		UserAgent: userAgent,
		Log:       log,
		settings:  settings,
		breakers:  xsync.NewMap[string, *gobreaker.CircuitBreaker](),
	}
}

// Request describes one upstream fetch.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Forward carries client headers (Range and friends) that take priority
	// over Headers.
	Forward http.Header
}

// Do performs req through the breaker for the target host. Transport errors
// and 5xx answers count as failures. A 5xx response is returned together with
// a *StatusError; the caller owns the body either way. When the breaker is
// open no request is made and ErrCircuitOpen is returned.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, vals := range req.Forward {
		for i, v := range vals {
			if i == 0 {
				httpReq.Header.Set(k, v)
			} else {
				httpReq.Header.Add(k, v)
			}
		}
	}

	var resp *http.Response
	_, err = c.breaker(u.Host).Execute(func() (interface{}, error) {
		r, err := c.HTTP.Do(httpReq)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return r, &StatusError{StatusCode: r.StatusCode}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, u.Host)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resp, err
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	return resp, nil
}

// States reports the breaker state per host seen so far.
func (c *Client) States() map[string]string {
	out := make(map[string]string)
	c.breakers.Range(func(host string, cb *gobreaker.CircuitBreaker) bool {
		out[host] = cb.State().String()
		return true
	})
	return out
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	cb, _ := c.breakers.LoadOrCompute(host, func() (*gobreaker.CircuitBreaker, bool) {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: c.settings.MaxRequests,
			Interval:    c.settings.Interval,
			Timeout:     c.settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= c.settings.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				// Client cancellation is not an origin failure.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.Log.Info("circuit-breaker state change", zap.String("host", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}), false
	})
	return cb
}
