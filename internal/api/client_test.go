package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestTransportDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify auth header
		if auth := r.Header.Get("Authorization"); auth != "test-token" {
			t.Errorf("expected raw token in Authorization, got %s", auth)
		}

		if r.URL.Path != "/bots/123" {
			t.Errorf("expected path /bots/123, got %s", r.URL.Path)
		}

		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]string{"id": "123"})
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "test-token"}, logger)

	raw, err := tr.Do(context.Background(), Request{Path: "/bots/123", Query: map[string][]string{"limit": {"5"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["id"] != "123" {
		t.Errorf("unexpected body: %s", raw)
	}
}

func TestTransportDo_EmptyBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"no content", http.StatusNoContent},
		{"empty ok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t"}, nil)
			raw, err := tr.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", Body: map[string]int{"a": 1}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(raw) != "{}" {
				t.Errorf("expected empty object, got %q", raw)
			}
		})
	}
}

func TestTransportDo_NotJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t"}, nil)
	_, err := tr.Do(context.Background(), Request{Path: "/x"})
	if !errors.Is(err, ErrNotJSON) {
		t.Errorf("expected ErrNotJSON, got %v", err)
	}
}

func TestTransportDo_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not found"}`))
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t"}, nil)
	_, err := tr.Do(context.Background(), Request{Path: "/bots/404"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err.Error() != "404 Not Found: Not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestTransportDo_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t"}, nil)
	_, err := tr.Do(context.Background(), Request{Path: "/x"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %T", err)
	}
	if statusErr.RetryAfter != 120*time.Second {
		t.Errorf("expected RetryAfter 120s, got %s", statusErr.RetryAfter)
	}
}

func TestTransportDo_RatePacing(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t", RatePerSecond: 100}, nil)
	for i := 0; i < 3; i++ {
		if _, err := tr.Do(context.Background(), Request{Path: "/x"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if hits != 3 {
		t.Errorf("expected 3 requests, got %d", hits)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewTransport(TransportConfig{BaseURL: server.URL, Token: "t", RatePerSecond: 0.001}, nil)
	slow.Do(context.Background(), Request{Path: "/x"}) // consume the single burst token
	if _, err := slow.Do(ctx, Request{Path: "/x"}); err == nil {
		t.Error("expected limiter error on cancelled context")
	}
}
