package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wonny/marketlens/backend/pkg/config"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:      "test",
		LogLevel: "error",
		Producer: config.ProducerConfig{
			Timeout:    5 * time.Second,
			MaxRetries: 3,
		},
	}
}

func TestNew(t *testing.T) {
	client := New(testConfig(), logger.Nop())
	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected timeout=5s, got %v", client.httpClient.Timeout)
	}

	if client.retryConfig.MaxRetries != 3 || !client.retryConfig.Enabled {
		t.Errorf("Expected 3 enabled retries, got %+v", client.retryConfig)
	}

	if client.limiter != nil {
		t.Error("Expected no limiter when rate is zero")
	}
}

func TestNewWithRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Producer.RatePerSec = 5

	client := New(cfg, logger.Nop())
	if client.limiter == nil {
		t.Fatal("Expected limiter to be configured")
	}

	client.WithRateLimit(0, 0)
	if client.limiter != nil {
		t.Error("Expected limiter to be removed")
	}
}

func TestDisableRetry(t *testing.T) {
	client := New(testConfig(), logger.Nop()).DisableRetry()

	if client.retryConfig.Enabled {
		t.Error("Expected retry to be disabled")
	}
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop())

	var out struct {
		Status string `json:"status"`
	}
	if err := client.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Status != "ok" {
		t.Errorf("Expected status ok, got %q", out.Status)
	}
}

func TestPostJSONIntoReplaysBodyOnRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)

		body, _ := io.ReadAll(r.Body)
		var in map[string]string
		if err := json.Unmarshal(body, &in); err != nil || in["ticker"] != "TCS.NS" {
			t.Errorf("attempt %d: body not replayed: %q", n, body)
		}

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(3, 10*time.Millisecond)

	var out struct {
		Success bool `json:"success"`
	}
	err := client.PostJSONInto(context.Background(), server.URL, map[string]string{"ticker": "TCS.NS"}, &out)
	if err != nil {
		t.Fatalf("Request failed after retries: %v", err)
	}
	if !out.Success {
		t.Error("Expected success=true")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestStatusErrorAfterRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(1, time.Millisecond)

	err := client.GetJSON(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !IsStatus(err, http.StatusBadGateway) {
		t.Errorf("Expected StatusError 502, got %v", err)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(3, time.Millisecond)

	err := client.GetJSON(context.Background(), server.URL, nil)
	if !IsStatus(err, http.StatusConflict) {
		t.Errorf("Expected 409 StatusError, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected a single attempt, got %d", got)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(testConfig(), logger.Nop()).WithRetry(5, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Get(ctx, server.URL)
	if err == nil {
		t.Fatal("Expected context error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("Retry loop ignored cancellation (%v)", time.Since(start))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			if got := IsRetryableError(tt.statusCode); got != tt.want {
				t.Errorf("IsRetryableError(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}
