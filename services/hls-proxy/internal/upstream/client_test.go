package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(threshold uint32) *Client {
	return New(5*time.Second, "qw-test", BreakerSettings{FailureThreshold: threshold, Timeout: time.Minute}, nil)
}

func TestDo_MergesHeadersOverUserAgent(t *testing.T) {
	var gotUA, gotRef, gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotRef = r.Header.Get("Referer")
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	c := newTestClient(5)
	resp, err := c.Do(context.Background(), Request{
		URL:     srv.URL + "/seg.ts",
		Headers: map[string]string{"Referer": "https://site.example/", "User-Agent": "custom"},
		Forward: http.Header{"Range": {"bytes=0-99"}},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if gotUA != "custom" {
		t.Fatalf("explicit User-Agent should win, got %q", gotUA)
	}
	if gotRef != "https://site.example/" {
		t.Fatalf("referer = %q", gotRef)
	}
	if gotRange != "bytes=0-99" {
		t.Fatalf("range = %q", gotRange)
	}
}

func TestDo_DefaultUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	resp, err := newTestClient(5).Do(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if gotUA != "qw-test" {
		t.Fatalf("user agent = %q", gotUA)
	}
}

func TestDo_ServerErrorReturnsResponseAndStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := newTestClient(5).Do(context.Background(), Request{URL: srv.URL})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if resp == nil {
		t.Fatal("5xx response should be returned for relaying")
	}
	resp.Body.Close()
}

func TestDo_BreakerOpensPerHost(t *testing.T) {
	var hits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()

	c := newTestClient(2)
	for i := 0; i < 2; i++ {
		resp, _ := c.Do(context.Background(), Request{URL: bad.URL})
		if resp != nil {
			resp.Body.Close()
		}
	}
	_, err := c.Do(context.Background(), Request{URL: bad.URL})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("open breaker should not reach upstream, hits=%d", hits.Load())
	}

	resp, err := c.Do(context.Background(), Request{URL: good.URL})
	if err != nil {
		t.Fatalf("other host should be unaffected: %v", err)
	}
	resp.Body.Close()

	badHost := mustHost(t, bad.URL)
	if got := c.States()[badHost]; got != "open" {
		t.Fatalf("state for %s = %q, want open", badHost, got)
	}
}

func TestDo_TransportErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	_, err := newTestClient(5).Do(context.Background(), Request{URL: target})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if errors.Is(err, ErrCircuitOpen) {
		t.Fatal("single failure should not open the breaker")
	}
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return u.Host
}

// ─── Timeouts ────────────────────────────────────────────────────────────────

func TestDo_SlowBodyOutlivesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first-")
		w.(http.Flusher).Flush()
		time.Sleep(400 * time.Millisecond)
		_, _ = io.WriteString(w, "second")
	}))
	defer srv.Close()

	c := New(150*time.Millisecond, "qw-test", BreakerSettings{FailureThreshold: 2, Timeout: time.Minute}, nil)
	resp, err := c.Do(context.Background(), Request{URL: srv.URL + "/seg.ts"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("body read cut off: %v", err)
	}
	if string(body) != "first-second" {
		t.Fatalf("body = %q", body)
	}
}

func TestDo_SlowHeadersTimeOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(100*time.Millisecond, "qw-test", BreakerSettings{FailureThreshold: 2, Timeout: time.Minute}, nil)
	resp, err := c.Do(context.Background(), Request{URL: srv.URL + "/seg.ts"})
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected header timeout")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
