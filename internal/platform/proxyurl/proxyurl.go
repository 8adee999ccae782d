// Package proxyurl builds and parses the proxied-URL convention shared by the
// player and the HLS proxy:
//
//	<base>/m3u8-proxy?url=<enc>&headers=<enc JSON>
//	<base>/ts-proxy?url=<enc>&headers=<enc JSON>
//
// Everything here is pure string work; nothing performs I/O.
package proxyurl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	PlaylistPath = "/m3u8-proxy"
	SegmentPath  = "/ts-proxy"
)

var (
	ErrMissingURL     = errors.New("missing url parameter")
	ErrInvalidURL     = errors.New("url must be absolute http(s)")
	ErrInvalidHeaders = errors.New("headers parameter is not a JSON object")
)

// Builder wraps upstream URLs in proxy URLs rooted at Base.
type Builder struct {
	Base string
}

func New(base string) *Builder {
	return &Builder{Base: strings.TrimRight(strings.TrimSpace(base), "/")}
}

// BuildProxiedURL wraps rawURL so the proxy fetches it with headers. URLs
// that already point at this proxy come back unchanged. When headers is
// empty, Origin and Referer are derived from rawURL. Paths ending in .ts use
// the segment endpoint; everything else uses the playlist endpoint.
func (b *Builder) BuildProxiedURL(rawURL string, headers map[string]string) string {
	if rawURL == "" || b.IsProxied(rawURL) {
		return rawURL
	}
	endpoint := PlaylistPath
	if IsSegment(rawURL) {
		endpoint = SegmentPath
	}
	return b.Wrap(endpoint, rawURL, headers)
}

// Wrap builds a proxy URL on an explicit endpoint. The rewriter uses it when
// the playlist type, not the file name, decides the endpoint.
func (b *Builder) Wrap(endpoint, rawURL string, headers map[string]string) string {
	if b.IsProxied(rawURL) {
		return rawURL
	}
	if len(headers) == 0 {
		headers = DeriveHeaders(rawURL)
	}
	return b.Base + endpoint + "?url=" + url.QueryEscape(rawURL) + "&headers=" + url.QueryEscape(EncodeHeaders(headers))
}

// IsProxied reports whether rawURL already targets one of this proxy's
// endpoints. An empty Base means same-origin, so relative endpoint paths
// match.
func (b *Builder) IsProxied(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	base, err := url.Parse(b.Base)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Host, base.Host) {
		return false
	}
	prefix := strings.TrimRight(base.Path, "/")
	return u.Path == prefix+PlaylistPath || u.Path == prefix+SegmentPath
}

// DeriveHeaders synthesizes Origin and Referer from rawURL's scheme and host.
// Relative or unparseable URLs yield an empty map.
func DeriveHeaders(rawURL string) map[string]string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return map[string]string{}
	}
	origin := u.Scheme + "://" + u.Host
	return map[string]string{
		"Origin":  origin,
		"Referer": origin + "/",
	}
}

// EncodeHeaders renders headers as JSON. encoding/json sorts map keys, which
// keeps output deterministic.
func EncodeHeaders(headers map[string]string) string {
	if headers == nil {
		headers = map[string]string{}
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Extract parses the url and headers query parameters back out of a proxied
// request. A missing or empty headers value yields an empty map.
func Extract(query url.Values) (string, map[string]string, error) {
	target := strings.TrimSpace(query.Get("url"))
	if target == "" {
		return "", nil, ErrMissingURL
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}

	headers := map[string]string{}
	if raw := strings.TrimSpace(query.Get("headers")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidHeaders, err)
		}
	}
	return target, headers, nil
}

// Resolve resolves ref against the playlist URL it appeared in.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// IsPlaylist reports whether rawURL's path ends in .m3u8.
func IsPlaylist(rawURL string) bool { return hasExt(rawURL, ".m3u8") }

// IsSegment reports whether rawURL's path ends in .ts.
func IsSegment(rawURL string) bool { return hasExt(rawURL, ".ts") }

func hasExt(rawURL, ext string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.EqualFold(path.Ext(p), ext)
}
