package function

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandler_DecodesBase64ForClient(t *testing.T) {
	segment := []byte{0x47, 0x40, 0x00, 0x10, 0x00, 0xff, 0xfe}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Access-Control-Allow-Origin", "https://cdn.example")
		_, _ = w.Write(segment)
	}))
	defer upstream.Close()

	h := Handler(newTestFunction())
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape(upstream.URL+"/seg.ts"), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !bytes.Equal(rr.Body.Bytes(), segment) {
		t.Fatalf("expected raw segment bytes, got %v", rr.Body.Bytes())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected forced CORS origin, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if rr.Header().Get("Content-Type") != "video/mp2t" {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}

func TestHandler_MissingURL(t *testing.T) {
	rr := httptest.NewRecorder()
	Handler(newTestFunction()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/proxy", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") || rr.Body.String() != "Missing ?url=" {
		t.Fatalf("expected plain-text error, got %q %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}
}

func TestHandler_ForwardsPostBody(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		_, _ = w.Write([]byte("done"))
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodPost, "/proxy?url="+url.QueryEscape(upstream.URL), strings.NewReader("payload"))
	rr := httptest.NewRecorder()
	Handler(newTestFunction()).ServeHTTP(rr, req)

	if got != "payload" || rr.Body.String() != "done" {
		t.Fatalf("unexpected exchange: upstream got %q, client got %q", got, rr.Body.String())
	}
}

func TestHandler_OversizedPostRejected(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer upstream.Close()

	body := bytes.Repeat([]byte("a"), maxInboundBody+1)
	req := httptest.NewRequest(http.MethodPost, "/proxy?url="+url.QueryEscape(upstream.URL), bytes.NewReader(body))
	rr := httptest.NewRecorder()
	Handler(newTestFunction()).ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if rr.Header().Get("X-Proxy-Error") != "BODY_TOO_LARGE" || rr.Body.String() != "Request body too large" {
		t.Fatalf("unexpected error response %q %q", rr.Header().Get("X-Proxy-Error"), rr.Body.String())
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("error response should carry CORS headers")
	}
	if hits != 0 {
		t.Fatalf("oversized body must not reach upstream, hits=%d", hits)
	}
}

func TestHandler_BodyAtLimitForwarded(t *testing.T) {
	var got int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = len(b)
	}))
	defer upstream.Close()

	body := bytes.Repeat([]byte("a"), maxInboundBody)
	req := httptest.NewRequest(http.MethodPost, "/proxy?url="+url.QueryEscape(upstream.URL), bytes.NewReader(body))
	rr := httptest.NewRecorder()
	Handler(newTestFunction()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || got != maxInboundBody {
		t.Fatalf("expected full body forwarded, status=%d upstream got %d", rr.Code, got)
	}
}

func TestHandler_HeadHasNoBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Size", "1")
	}))
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodHead, "/proxy?url="+url.QueryEscape(upstream.URL), nil)
	rr := httptest.NewRecorder()
	Handler(newTestFunction()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("expected empty 200, got %d with %d bytes", rr.Code, rr.Body.Len())
	}
	if rr.Header().Get("X-Size") != "1" {
		t.Fatal("expected upstream headers on HEAD")
	}
}
