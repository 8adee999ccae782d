package function

import (
	"net/http"
)

// ProxyError is a locally generated failure, returned as plain text with the
// code in X-Proxy-Error.
type ProxyError struct {
	HTTPCode int
	Code     string
	Message  string
}

func (e *ProxyError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrInvalidRequest = &ProxyError{
		HTTPCode: http.StatusBadRequest,
		Code:     "INVALID_REQUEST",
		Message:  "Missing ?url=",
	}
	ErrUpstreamUnavailable = &ProxyError{
		HTTPCode: http.StatusBadGateway,
		Code:     "UPSTREAM_UNAVAILABLE",
		Message:  "Upstream fetch failed",
	}
	ErrBodyTooLarge = &ProxyError{
		HTTPCode: http.StatusRequestEntityTooLarge,
		Code:     "BODY_TOO_LARGE",
		Message:  "Request body too large",
	}
)

func errorResponse(pe *ProxyError) Response {
	h := corsHeaders()
	h["content-type"] = "text/plain; charset=utf-8"
	h["x-proxy-error"] = pe.Code
	return Response{StatusCode: pe.HTTPCode, Headers: h, Body: pe.Message}
}
