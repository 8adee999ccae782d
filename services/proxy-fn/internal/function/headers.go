package function

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Request headers that must not travel upstream. The client computes its
// own framing and compression.
var droppedRequestHeaders = map[string]struct{}{
	"connection":        {},
	"transfer-encoding": {},
	"content-length":    {},
	"host":              {},
	"accept-encoding":   {},
}

// sanitizeHeaders drops framing headers and anything that is not a valid
// header field.
func sanitizeHeaders(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		if _, drop := droppedRequestHeaders[strings.ToLower(k)]; drop {
			continue
		}
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		out.Set(k, v)
	}
	return out
}

func corsHeaders() map[string]string {
	return map[string]string{
		"access-control-allow-origin":  "*",
		"access-control-allow-headers": "*",
		"access-control-allow-methods": "GET,HEAD,POST,OPTIONS",
	}
}

// responseHeaders flattens upstream headers to lower-case keys and forces
// the CORS set over whatever upstream sent.
func responseHeaders(upstream http.Header) map[string]string {
	out := make(map[string]string, len(upstream)+3)
	for k, vals := range upstream {
		out[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	for k, v := range corsHeaders() {
		out[k] = v
	}
	return out
}
