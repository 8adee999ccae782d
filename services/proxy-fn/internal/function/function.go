// Package function relays one HTTP request to an arbitrary upstream and
// returns the payload base64-encoded with permissive CORS headers.
package function

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Function is stateless apart from its HTTP client and safe for concurrent
// invocations.
type Function struct {
	Client *http.Client
	Log    *zap.Logger
	// MaxBodyBytes rejects larger upstream bodies as unavailable. Zero
	// disables the limit.
	MaxBodyBytes int64
}

func New(timeout time.Duration, maxBody int64, log *zap.Logger) *Function {
	if log == nil {
		log = zap.NewNop()
	}
	return &Function{
		Client:       &http.Client{Timeout: timeout},
		Log:          log,
		MaxBodyBytes: maxBody,
	}
}

// Handle performs a single upstream fetch. It never retries.
func (f *Function) Handle(ctx context.Context, ev Event) Response {
	method := strings.ToUpper(strings.TrimSpace(ev.HTTPMethod))
	if method == "" {
		method = http.MethodGet
	}
	if method == http.MethodOptions {
		return Response{StatusCode: http.StatusNoContent, Headers: corsHeaders()}
	}

	target := targetFromQuery(ev.RawQuery)
	if target == "" {
		return errorResponse(ErrInvalidRequest)
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead && ev.Body != "" {
		raw, err := eventBody(ev)
		if err != nil {
			f.Log.Warn("proxy: undecodable request body", zap.Error(err))
			return errorResponse(ErrInvalidRequest)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		f.logUpstreamFailure(target, err)
		return errorResponse(ErrUpstreamUnavailable)
	}
	req.Header = sanitizeHeaders(ev.Headers)

	resp, err := f.client().Do(req)
	if err != nil {
		f.logUpstreamFailure(target, err)
		return errorResponse(ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	payload, err := f.readBody(resp.Body)
	if err != nil {
		f.logUpstreamFailure(target, err)
		return errorResponse(ErrUpstreamUnavailable)
	}

	f.Log.Debug("proxy: relayed",
		zap.String("method", method),
		zap.String("host", req.URL.Host),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(payload)),
	)
	return Response{
		StatusCode:      resp.StatusCode,
		Headers:         responseHeaders(resp.Header),
		Body:            base64.StdEncoding.EncodeToString(payload),
		IsBase64Encoded: true,
	}
}

func (f *Function) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *Function) readBody(r io.Reader) ([]byte, error) {
	if f.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBodyBytes {
		return nil, fmt.Errorf("upstream body exceeds %d bytes", f.MaxBodyBytes)
	}
	return data, nil
}

func (f *Function) logUpstreamFailure(target string, err error) {
	host := target
	if u, perr := url.Parse(target); perr == nil && u.Host != "" {
		host = u.Host
	}
	f.Log.Warn("proxy: upstream fetch failed", zap.String("host", host), zap.Error(err))
}

func targetFromQuery(rawQuery string) string {
	// ParseQuery keeps the pairs it could parse alongside the error.
	q, _ := url.ParseQuery(rawQuery)
	return strings.TrimSpace(q.Get("url"))
}

func eventBody(ev Event) ([]byte, error) {
	if !ev.IsBase64Encoded {
		return []byte(ev.Body), nil
	}
	return base64.StdEncoding.DecodeString(ev.Body)
}
