package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetJSONSuccess(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"device":"hamilton-01","events":2}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "bridge-token")
	var dest struct {
		Device string `json:"device"`
		Events int    `json:"events"`
	}
	q := url.Values{"cursor": {"42"}, "limit": {"10"}}
	if err := c.GetJSON(context.Background(), "/events", q, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Device != "hamilton-01" || dest.Events != 2 {
		t.Fatalf("unexpected result: %+v", dest)
	}
	if gotAuth != "Bearer bridge-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	// url.Values.Encode sorts keys alphabetically
	if gotQuery != "cursor=42&limit=10" {
		t.Errorf("unexpected query: %q", gotQuery)
	}
}

func TestNoTokenNoAuthHeader(t *testing.T) {
	var hasAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if err := New(srv.URL, "").GetJSON(context.Background(), "/", nil, &struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasAuth {
		t.Error("expected no Authorization header without a token")
	}
}

func TestPostJSON(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"status":"triggered"}`))
	}))
	defer srv.Close()

	var dest struct {
		Status string `json:"status"`
	}
	body := map[string]any{"action": "PAUSE", "reasoning": "operator"}
	if err := New(srv.URL, "").PostJSON(context.Background(), "/reflex/trigger", body, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.Status != "triggered" {
		t.Errorf("status = %q", dest.Status)
	}
	if got["action"] != "PAUSE" {
		t.Errorf("server received %v", got)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
}

func TestPostJSONNilDest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").PostJSON(context.Background(), "/", struct{}{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"action not allowed"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok").GetJSON(context.Background(), "/", nil, &struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Body != `{"error":"action not allowed"}` {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestRetryAfterHonoured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var dest struct {
		OK bool `json:"ok"`
	}
	start := time.Now()
	if err := New(srv.URL, "tok", WithBackoff(time.Millisecond)).GetJSON(context.Background(), "/", nil, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected ~1s Retry-After delay, got %v", elapsed)
	}
	if !dest.OK || calls.Load() != 2 {
		t.Fatalf("ok=%v calls=%d", dest.OK, calls.Load())
	}
}

func TestRetryOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if err := New(srv.URL, "", WithBackoff(time.Millisecond)).GetJSON(context.Background(), "/", nil, &struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestMaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, "", WithBackoff(time.Millisecond)).GetJSON(context.Background(), "/", nil, &struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	// 1 initial + 3 retries
	if calls.Load() != 4 {
		t.Fatalf("expected 4 calls, got %d", calls.Load())
	}
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(srv.URL, "", WithBackoff(time.Hour)).GetJSON(ctx, "/", nil, &struct{}{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}
