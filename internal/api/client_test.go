package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://gateway.example.com/api", "test-token")

		if c.baseURL != "https://gateway.example.com/api" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://gateway.example.com/api")
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://gateway.example.com/api", "token",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 10)
		}
		if c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 500*time.Millisecond)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://gateway.example.com/api", "", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://gateway.example.com/api", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 401, Message: "Unauthorized"}
		expected := "gateway api error 401: Unauthorized"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}

		err = &APIError{StatusCode: 429, Code: 20028, Message: "rate limited"}
		expected = "gateway api error 429 (code 20028): rate limited"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{401, false},
			{404, false},
			{200, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

type staticSigner struct {
	headers map[string]string
	err     error
}

func (s staticSigner) SignRequest(method, path string) (map[string]string, error) {
	return s.headers, s.err
}

func TestDoRequest(t *testing.T) {
	t.Run("sets auth headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
			}
			if got := r.Header.Get("X-Gate-Signature"); got != "sig" {
				t.Errorf("X-Gate-Signature = %q, want %q", got, "sig")
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok", WithSigner(staticSigner{headers: map[string]string{"X-Gate-Signature": "sig"}}))
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("no token sends no Authorization", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "" {
				t.Errorf("Authorization = %q, want empty", got)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("signer failure", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:0", "", WithSigner(staticSigner{err: errors.New("no key")}))
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "sign request") {
			t.Fatalf("expected sign request error, got %v", err)
		}
	})

	t.Run("sets user agent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("User-Agent"); got != "shardgate-test" {
				t.Errorf("User-Agent = %q, want %q", got, "shardgate-test")
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithUserAgent("shardgate-test"))
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("parses error envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message": "You are being rate limited.", "code": 20028, "retry_after": 1.5}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.Message != "You are being rate limited." {
			t.Errorf("Message = %q", apiErr.Message)
		}
		if apiErr.Code != 20028 {
			t.Errorf("Code = %d, want 20028", apiErr.Code)
		}
		if apiErr.RetryAfter != 1500*time.Millisecond {
			t.Errorf("RetryAfter = %v, want 1.5s", apiErr.RetryAfter)
		}
	})

	t.Run("Retry-After header wins when longer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"retry_after": 1}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.RetryAfter != 3*time.Second {
			t.Errorf("RetryAfter = %v, want 3s", apiErr.RetryAfter)
		}
		if apiErr.Message != "Service Unavailable" {
			t.Errorf("Message = %q, want status text", apiErr.Message)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, 404)
		}
		if !strings.Contains(string(apiErr.Body), "not found") {
			t.Errorf("Body should contain 'not found', got %q", string(apiErr.Body))
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q, want %q", string(body), `{"ok": true}`)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("honors retry_after", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"retry_after": 0.15}`))
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, time.Millisecond))
		start := time.Now()
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
			t.Errorf("elapsed = %v, want >= 150ms", elapsed)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("error should contain 'max retries exceeded', got %v", err)
		}
		// 1 initial + 2 retries
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(5, 50*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		_, err := c.doWithRetry(ctx, http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "context") {
			t.Errorf("error should be context-related, got %v", err)
		}
	})
}

func TestGetGatewayInfo(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/gateway/bot" {
				t.Errorf("path = %q, want %q", r.URL.Path, "/gateway/bot")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"url": "wss://gateway.example.com",
				"shards": 4,
				"session_start_limit": {"total": 1000, "remaining": 998, "reset_after": 60000, "max_concurrency": 2}
			}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok")
		info, err := c.GetGatewayInfo(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.URL != "wss://gateway.example.com" {
			t.Errorf("URL = %q", info.URL)
		}
		if info.Shards != 4 {
			t.Errorf("Shards = %d, want 4", info.Shards)
		}
		l := info.SessionStartLimit
		if l.Total != 1000 || l.Remaining != 998 || l.MaxConcurrency != 2 {
			t.Errorf("SessionStartLimit = %+v", l)
		}
		if l.ResetAfter() != time.Minute {
			t.Errorf("ResetAfter() = %v, want %v", l.ResetAfter(), time.Minute)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "tok")
		_, err := c.GetGatewayInfo(context.Background())
		if err == nil || !strings.Contains(err.Error(), "unmarshal response") {
			t.Fatalf("expected unmarshal error, got %v", err)
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, "bad")
		_, err := c.GetGatewayInfo(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 APIError, got %v", err)
		}
	})
}
