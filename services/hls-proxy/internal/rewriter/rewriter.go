package rewriter

import (
	"strings"

	"github.com/example/quickwatch/internal/platform/proxyurl"
)

// Tags whose URI attribute names another playlist. Every other URI attribute
// (keys, init maps, parts) is fetched as a binary resource.
var playlistURITags = []string{
	"#EXT-X-MEDIA:",
	"#EXT-X-I-FRAME-STREAM-INF:",
}

// IsMaster reports whether body looks like a master playlist.
func IsMaster(body string) bool {
	return strings.Contains(body, "#EXT-X-STREAM-INF") || strings.Contains(body, "RESOLUTION=")
}

// RewriteM3U8 routes every URI in body through the proxy. Relative URIs are
// resolved against baseURL first. Variant lines of a master playlist go to the
// playlist endpoint; segment lines of a media playlist go to the segment
// endpoint. headers travel with every rewritten URL.
func RewriteM3U8(body, baseURL string, b *proxyurl.Builder, headers map[string]string) string {
	lineEndpoint := proxyurl.SegmentPath
	if IsMaster(body) {
		lineEndpoint = proxyurl.PlaylistPath
	}

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trim := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		switch {
		case trim == "":
			out = append(out, line)
		case strings.HasPrefix(trim, "#"):
			if strings.Contains(trim, `URI="`) {
				line = rewriteURITag(line, baseURL, b, headers)
			}
			out = append(out, line)
		default:
			out = append(out, b.Wrap(lineEndpoint, resolveURL(baseURL, trim), headers))
		}
	}
	return strings.Join(out, "\n")
}

func rewriteURITag(line, baseURL string, b *proxyurl.Builder, headers map[string]string) string {
	start := strings.Index(line, `URI="`)
	if start == -1 {
		return line
	}
	start += len(`URI="`)
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return line
	}
	uri := line[start : start+end]
	if uri == "" || strings.HasPrefix(uri, "data:") || strings.HasPrefix(uri, "skd:") {
		return line
	}
	endpoint := proxyurl.SegmentPath
	if tagRoutesToPlaylist(strings.TrimSpace(line)) {
		endpoint = proxyurl.PlaylistPath
	}
	return line[:start] + b.Wrap(endpoint, resolveURL(baseURL, uri), headers) + line[start+end:]
}

func tagRoutesToPlaylist(tag string) bool {
	for _, prefix := range playlistURITags {
		if strings.HasPrefix(tag, prefix) {
			return true
		}
	}
	return false
}

// resolveURL keeps absolute references and resolves the rest against the
// playlist URL. Query strings on the reference survive; the base's do not.
func resolveURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	resolved, err := proxyurl.Resolve(baseURL, ref)
	if err != nil {
		return ref
	}
	return resolved
}
