package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/api"
	"github.com/example/quickwatch/internal/platform/httpserver"
	"github.com/example/quickwatch/internal/platform/proxyurl"
	"github.com/example/quickwatch/services/hls-proxy/internal/cache"
	"github.com/example/quickwatch/services/hls-proxy/internal/rewriter"
	"github.com/example/quickwatch/services/hls-proxy/internal/upstream"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	maxPlaylistBytes    = 8 << 20
)

// Client headers relayed to the origin on segment fetches.
var forwardedRequestHeaders = []string{"Range", "If-Range", "If-None-Match", "If-Modified-Since"}

// Origin headers relayed back on segment responses.
var relayedResponseHeaders = []string{"Content-Length", "Content-Range", "Accept-Ranges", "ETag", "Last-Modified", "Cache-Control"}

type Deps struct {
	Upstream *upstream.Client
	// Cache may be nil.
	Cache cache.Cache
	// PublicBase overrides the proxy origin written into playlists.
	PublicBase string
	Log        *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// Playlist fetches an m3u8, routes every URI in it back through this proxy
// and serves the result.
func Playlist(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		rid := httpserver.RequestIDFromContext(r.Context())
		target, headers, err := proxyurl.Extract(r.URL.Query())
		if err != nil {
			api.BadRequest(w, "INVALID_REQUEST", err.Error(), rid, nil)
			return
		}

		base := d.base(r)
		key := cache.Key(target, headers, base)
		if d.Cache != nil {
			if p, ok, err := d.Cache.Get(r.Context(), key); err != nil {
				d.logger().Warn("playlist cache get", zap.String("request_id", rid), zap.Error(err))
			} else if ok {
				w.Header().Set("X-Cache", "HIT")
				writePlaylist(w, p)
				return
			}
		}

		resp, err := d.Upstream.Do(r.Context(), upstream.Request{URL: target, Headers: headers})
		if resp == nil {
			d.writeUpstreamError(w, rid, target, err)
			return
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
		if readErr != nil {
			d.writeUpstreamError(w, rid, target, readErr)
			return
		}
		if err != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
			d.logger().Warn("playlist upstream status", zap.String("request_id", rid), zap.String("target", target), zap.Int("status", resp.StatusCode))
			api.WriteText(w, resp.StatusCode, string(data))
			return
		}

		// Relative URIs resolve against the URL that answered, after redirects.
		resolvedFrom := target
		if resp.Request != nil && resp.Request.URL != nil {
			resolvedFrom = resp.Request.URL.String()
		}
		p := cache.Playlist{
			StatusCode: resp.StatusCode,
			Body:       rewriter.RewriteM3U8(string(data), resolvedFrom, proxyurl.New(base), headers),
		}
		if d.Cache != nil {
			if err := d.Cache.Set(r.Context(), key, p); err != nil {
				d.logger().Warn("playlist cache set", zap.String("request_id", rid), zap.Error(err))
			}
		}
		w.Header().Set("X-Cache", "MISS")
		writePlaylist(w, p)
	}
}

// Segment streams a media segment, key or init section from the origin.
func Segment(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		rid := httpserver.RequestIDFromContext(r.Context())
		target, headers, err := proxyurl.Extract(r.URL.Query())
		if err != nil {
			api.BadRequest(w, "INVALID_REQUEST", err.Error(), rid, nil)
			return
		}

		forward := http.Header{}
		for _, h := range forwardedRequestHeaders {
			if v := r.Header.Get(h); v != "" {
				forward.Set(h, v)
			}
		}
		resp, err := d.Upstream.Do(r.Context(), upstream.Request{Method: r.Method, URL: target, Headers: headers, Forward: forward})
		if resp == nil {
			d.writeUpstreamError(w, rid, target, err)
			return
		}
		defer resp.Body.Close()

		for _, h := range relayedResponseHeaders {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.Header().Set("Content-Type", segmentContentType)
		w.WriteHeader(resp.StatusCode)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			d.logger().Debug("segment copy aborted", zap.String("request_id", rid), zap.String("target", target), zap.Error(err))
		}
	}
}

// Preflight answers CORS preflight requests without touching the origin.
func Preflight() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		setCORS(w)
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.WriteHeader(http.StatusNoContent)
	}
}

// Upstreams reports circuit breaker state per origin host.
func Upstreams(c *upstream.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"breakers": c.States()})
	}
}

func (d Deps) writeUpstreamError(w http.ResponseWriter, rid, target string, err error) {
	d.logger().Warn("upstream fetch failed", zap.String("request_id", rid), zap.String("target", target), zap.Error(err))
	if errors.Is(err, upstream.ErrCircuitOpen) {
		api.Unavailable(w, "UPSTREAM_CIRCUIT_OPEN", "Upstream temporarily unavailable", rid)
		return
	}
	api.BadGateway(w, "UPSTREAM_UNAVAILABLE", "Upstream fetch failed", rid)
}

// base returns the proxy origin to embed in rewritten URLs.
func (d Deps) base(r *http.Request) string {
	if d.PublicBase != "" {
		return d.PublicBase
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); p != "" {
		scheme = p
	}
	host := r.Host
	if h := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	return fmt.Sprintf("%s://%s", scheme, host)
}

func writePlaylist(w http.ResponseWriter, p cache.Playlist) {
	w.Header().Set("Content-Type", playlistContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(p.StatusCode)
	_, _ = io.WriteString(w, p.Body)
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "*")
	h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")
}
