package playback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

// ResourceKind says what the engine is fetching.
type ResourceKind int

const (
	ResourceManifest ResourceKind = iota
	ResourcePlaylist
	ResourceSegment
	ResourceKey
)

type LoadRequest struct {
	URL     string
	Kind    ResourceKind
	Headers map[string]string
}

type LoadResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Loader fetches one engine resource.
type Loader interface {
	Load(ctx context.Context, req LoadRequest) (*LoadResponse, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, req LoadRequest) (*LoadResponse, error)

func (f LoaderFunc) Load(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	return f(ctx, req)
}

// LoaderHook routes playlist and segment fetches through the proxy before
// handing them to Next. URLs already on the proxy are left alone.
type LoaderHook struct {
	Proxy *proxyurl.Builder
	// Headers are sent upstream by the proxy. Empty means derive Origin and
	// Referer from each URL.
	Headers map[string]string
	Next    Loader
	Log     *zap.Logger
}

func NewLoaderHook(proxy *proxyurl.Builder, headers map[string]string, next Loader, log *zap.Logger) *LoaderHook {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoaderHook{Proxy: proxy, Headers: headers, Next: next, Log: log}
}

// Rewrite returns the URL the hook would actually fetch.
func (h *LoaderHook) Rewrite(raw string) string {
	if h.Proxy == nil || h.Proxy.IsProxied(raw) {
		return raw
	}
	if proxyurl.IsPlaylist(raw) || proxyurl.IsSegment(raw) {
		return h.Proxy.BuildProxiedURL(raw, h.Headers)
	}
	return raw
}

func (h *LoaderHook) Load(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	if rewritten := h.Rewrite(req.URL); rewritten != req.URL {
		h.Log.Debug("loader: proxied", zap.String("from", req.URL), zap.String("to", rewritten))
		req.URL = rewritten
	}
	return h.Next.Load(ctx, req)
}

// LoadError is a failed fetch. Engines report it as a network error.
type LoadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("load %s: status %d", e.URL, e.StatusCode)
}

func (e *LoadError) Unwrap() error { return e.Err }

// HTTPLoader is the default network loader.
type HTTPLoader struct {
	Client    *http.Client
	UserAgent string
	// MaxBytes bounds a single response body. Zero means 64 MiB.
	MaxBytes int64
}

func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPLoader{Client: &http.Client{Timeout: timeout}}
}

func (l *HTTPLoader) Load(ctx context.Context, req LoadRequest) (*LoadResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &LoadError{URL: req.URL, Err: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if l.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", l.UserAgent)
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &LoadError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &LoadError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	limit := l.MaxBytes
	if limit <= 0 {
		limit = 64 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &LoadError{URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > limit {
		return nil, &LoadError{URL: req.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, limit)}
	}
	return &LoadResponse{
		URL:         req.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
