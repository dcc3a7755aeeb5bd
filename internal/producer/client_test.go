package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/pkg/config"
	"github.com/wonny/marketlens/backend/pkg/httputil"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := &config.Config{Producer: config.ProducerConfig{Timeout: 2 * time.Second}}
	hc := httputil.New(cfg, logger.Nop()).DisableRetry()
	return NewWithHTTP(srv.URL+"/", hc, logger.Nop())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerate(t *testing.T) {
	var got GenerateRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rag_chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"chat_id": "c-1",
			"query":   got.Query,
			"summary": "Reliance looks constructive",
			"recommendations": []map[string]interface{}{{
				"ticker":     "RELIANCE.NS",
				"action":     "buy",
				"score":      0.78,
				"confidence": 0.82,
				"rationale":  "Strong earnings",
				"ensemble":   map[string]float64{"finbert": 0.82, "llm": 0.76, "lexicon": 0.78},
				"drivers": []map[string]interface{}{{
					"doc_id": "reuters-1", "type": "news", "source": "Reuters",
					"source_trust": 0.9, "verified": true,
				}},
			}},
			"global_confidence": 0.8,
			"notes": map[string]string{
				"politician_claims_policy": "verify with official filings",
				"data_retention_hint":      "posts summarized and anonymized",
			},
		})
	}))

	env, err := c.Generate(context.Background(), GenerateRequest{
		Query:   "Should I buy Reliance?",
		Tickers: []string{"RELIANCE.NS"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Should I buy Reliance?", got.Query)
	assert.Equal(t, []string{"RELIANCE.NS"}, got.Tickers)

	require.Len(t, env.Recommendations, 1)
	rec := env.Recommendations[0]
	assert.Equal(t, "RELIANCE.NS", rec.Ticker)
	require.NotNil(t, rec.Ensemble)
	assert.InDelta(t, 0.76, rec.Ensemble.LLM, 1e-9)
	require.Len(t, rec.Drivers, 1)
	assert.Equal(t, "news", rec.Drivers[0].Kind)
	require.NotNil(t, env.GlobalConfidence)
	assert.InDelta(t, 0.8, *env.GlobalConfidence, 1e-9)
	require.NotNil(t, env.Notes)
	assert.Equal(t, "verify with official filings", env.Notes.PoliticianClaimsPolicy)
}

func TestGenerateServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Generate(context.Background(), GenerateRequest{Query: "q"})
	require.Error(t, err)
	assert.True(t, httputil.IsStatus(err, http.StatusInternalServerError))
}

func TestWatchlistRoundTrip(t *testing.T) {
	list := []string{"RELIANCE.NS"}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo", r.URL.Query().Get("user_id"))
		switch r.URL.Path {
		case "/v1/watchlist":
			writeJSON(w, http.StatusOK, map[string]interface{}{"watchlist": list})
		case "/v1/watchlist/add":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			list = append(list, body["ticker"])
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "watchlist": list})
		case "/v1/watchlist/remove":
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "message": "not in watchlist"})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	got, err := c.List(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS"}, got)

	got, err = c.Add(ctx, "demo", "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, got)

	_, err = c.Remove(ctx, "demo", "INFY.NS")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "not in watchlist")
}

func TestFeedQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feed", r.URL.Path)
		assert.Equal(t, "RELIANCE.NS,TCS.NS", r.URL.Query().Get("tickers"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": "n1", "source": "x.com", "title": "<b>Up</b>", "confidence": 0.7},
		})
	}))

	items, err := c.Feed(context.Background(), []string{"RELIANCE.NS", "TCS.NS"}, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "x.com", items[0].Source)
	require.NotNil(t, items[0].Confidence)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.List(ctx, "")
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.List(ctx, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConnection))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "open breaker must not reach the server")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad ticker", http.StatusBadRequest)
	}))

	for i := 0; i < 5; i++ {
		_, err := c.Add(context.Background(), "", "??")
		require.Error(t, err)
		assert.True(t, httputil.IsStatus(err, http.StatusBadRequest))
	}
	assert.Equal(t, "closed", c.BreakerState())
}
