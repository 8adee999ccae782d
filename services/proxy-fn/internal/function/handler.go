package function

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// maxInboundBody bounds request bodies accepted by Handler.
const maxInboundBody = 6 << 20

// Handler serves Function over net/http, doing the runtime's part of the
// contract: build the Event, then decode the base64 body on the way out.
func Handler(f *Function) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, err := eventFromRequest(r)
		if err != nil {
			f.Log.Warn("proxy: read request body", zap.Error(err))
			pe := ErrInvalidRequest
			_ = errors.As(err, &pe)
			writeResponse(w, errorResponse(pe), r.Method)
			return
		}
		writeResponse(w, f.Handle(r.Context(), ev), r.Method)
	})
}

func eventFromRequest(r *http.Request) (Event, error) {
	ev := Event{
		HTTPMethod: r.Method,
		RawQuery:   r.URL.RawQuery,
		Headers:    make(map[string]string, len(r.Header)),
	}
	for k, vals := range r.Header {
		ev.Headers[strings.ToLower(k)] = strings.Join(vals, ", ")
	}
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ev, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody+1))
	if err != nil {
		return Event{}, err
	}
	if len(data) > maxInboundBody {
		return Event{}, ErrBodyTooLarge
	}
	if utf8.Valid(data) {
		ev.Body = string(data)
	} else {
		ev.Body = base64.StdEncoding.EncodeToString(data)
		ev.IsBase64Encoded = true
	}
	return ev, nil
}

// Response headers that describe the runtime's framing rather than the
// payload.
var skippedResponseHeaders = map[string]struct{}{
	"content-length":    {},
	"transfer-encoding": {},
	"connection":        {},
	"keep-alive":        {},
}

func writeResponse(w http.ResponseWriter, resp Response, method string) {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			resp = errorResponse(ErrUpstreamUnavailable)
			decoded = []byte(resp.Body)
		}
		body = decoded
	}

	h := w.Header()
	for k, v := range resp.Headers {
		if _, skip := skippedResponseHeaders[k]; skip {
			continue
		}
		h.Set(k, v)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)
	if method == http.MethodHead || len(body) == 0 {
		return
	}
	_, _ = w.Write(body)
}
