package httpds

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

// TestNewClient_Defaults verifies defaults and the TLS setting of the default
// transport.
func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{InsecureSkipVerify: true})
	if c.httpClient.Timeout <= 0 {
		t.Fatalf("expected non-zero timeout, got %v", c.httpClient.Timeout)
	}
	if c.maxRetries != 0 {
		t.Fatalf("expected maxRetries=0, got %d", c.maxRetries)
	}
	if c.initialBackoff <= 0 || c.maxBackoff <= 0 {
		t.Fatalf("expected positive backoff defaults, got %v/%v", c.initialBackoff, c.maxBackoff)
	}
	if c.limiter != nil {
		t.Fatalf("expected no rate limiter by default")
	}
	tp, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", c.httpClient.Transport)
	}
	if tp.TLSClientConfig == nil || !tp.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected InsecureSkipVerify=true when configured")
	}
}

func TestDo_RetryOn5xxThenSuccess(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "cnpj-test" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3, UserAgent: "cnpj-test"})
	c.sleep = noSleep

	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestDo_StopsAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2})
	c.sleep = noSleep

	if _, err := c.Get(context.Background(), srv.URL, nil); err == nil {
		t.Fatalf("expected error after retries")
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestDo_NonRetryableStatus(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 5})
	c.sleep = noSleep

	resp, err := c.Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Head error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one 404, got status %d after %d requests", resp.StatusCode, hits)
	}
}

func TestDo_InvalidArgs(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	if _, err := c.Do(context.Background(), "", "http://x", nil); err == nil {
		t.Fatalf("expected error for empty method")
	}
	if _, err := c.Do(context.Background(), http.MethodGet, "", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()

	initial, max := 100*time.Millisecond, time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{62, time.Second},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.attempt), func(t *testing.T) {
			if got := backoffDuration(initial, tt.attempt, max); got != tt.want {
				t.Fatalf("backoffDuration(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	for code, want := range map[int]bool{200: false, 206: false, 404: false, 416: false, 429: true, 500: true, 503: true} {
		if got := isRetryableStatus(code); got != want {
			t.Errorf("isRetryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestCustomTransport(t *testing.T) {
	t.Parallel()

	custom := &http.Transport{TLSClientConfig: &tls.Config{}}
	c := NewClient(Config{Transport: custom, InsecureSkipVerify: true})
	if c.httpClient.Transport != custom {
		t.Fatalf("expected custom transport to be used")
	}
	if custom.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("custom transport must not be modified")
	}
}

func TestSleepWithContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
