package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/api/handlers"
	"github.com/wonny/marketlens/backend/internal/feed"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/internal/stream"
	"github.com/wonny/marketlens/backend/internal/watchlist"
	"github.com/wonny/marketlens/backend/pkg/logger"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

func testRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	log := logger.Nop()
	board := stream.NewSignalBoard(stream.BoardConfig{}, log)
	h := Handlers{
		Watchlist: handlers.NewWatchlistHandler(watchlist.New("demo", nil, log), log),
		Signals:   handlers.NewSignalsHandler(board, stream.NewInsightBoard(log), nil, log),
		Feed:      handlers.NewFeedHandler(feed.NewService(nil, nil, feed.Config{}, log), log),
		Chat:      handlers.NewChatHandler(nil, nil, log),
		Stream:    handlers.NewStreamHandler(board, nil, nil, nil, log),
	}
	return NewRouter(h, cfg, log)
}

func TestHealth(t *testing.T) {
	r := testRouter(t, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsRoute(t *testing.T) {
	metrics.Register()

	r := testRouter(t, RouterConfig{MetricsEnabled: true})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/signals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/signals"`)

	off := testRouter(t, RouterConfig{})
	rec = httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitPassesWhenRedisDisabled(t *testing.T) {
	r := testRouter(t, RouterConfig{
		Limiter:    redis.NewRateLimiter(redis.Disabled(), "test"),
		RateLimit:  1,
		RateWindow: time.Minute,
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/watchlist", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
