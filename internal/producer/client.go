// Package producer talks to the producing service that computes scores,
// evidence and envelopes. Every call goes through a circuit breaker so a
// failing producer is shed quickly instead of tying up request goroutines.
package producer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/watchlist"
	"github.com/wonny/marketlens/backend/pkg/config"
	"github.com/wonny/marketlens/backend/pkg/httputil"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

var _ watchlist.Store = (*Client)(nil)

// ErrRejected is returned when the producer answers success=false
var ErrRejected = errors.New("producer rejected request")

// Client is the producing service API client.
// It also implements watchlist.Store.
type Client struct {
	baseURL string
	http    *httputil.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// New creates a client from configuration
func New(cfg *config.Config, log *logger.Logger) *Client {
	return NewWithHTTP(cfg.Producer.BaseURL, httputil.New(cfg, log), log)
}

// NewWithHTTP creates a client around an existing HTTP client
func NewWithHTTP(baseURL string, hc *httputil.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	l := log.WithComponent("producer")

	st := gobreaker.Settings{
		Name:     "producer",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		IsSuccessful: func(err error) bool {
			// 4xx is the caller's fault, not a producer outage
			return err == nil || isClientError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  l,
	}
}

// BreakerState reports the circuit breaker state (closed, half-open, open)
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Generate requests a recommendation envelope
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*RawEnvelope, error) {
	var out RawEnvelope
	if err := c.call(ctx, func() error {
		return c.http.PostJSONInto(ctx, c.baseURL+"/v1/rag_chat", req, &out)
	}); err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &out, nil
}

// List returns the producer's copy of the watchlist
func (c *Client) List(ctx context.Context, id string) ([]string, error) {
	var out watchlistResponse
	if err := c.call(ctx, func() error {
		return c.http.GetJSON(ctx, c.watchlistURL("", id), &out)
	}); err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	return out.Watchlist, nil
}

// Add commits symbol to the producer's watchlist
func (c *Client) Add(ctx context.Context, id, symbol string) ([]string, error) {
	return c.mutate(ctx, "/add", id, symbol)
}

// Remove deletes symbol from the producer's watchlist
func (c *Client) Remove(ctx context.Context, id, symbol string) ([]string, error) {
	return c.mutate(ctx, "/remove", id, symbol)
}

// Feed fetches raw feed items for tickers
func (c *Client) Feed(ctx context.Context, tickers []string, limit int) ([]RawFeedItem, error) {
	q := url.Values{}
	if len(tickers) > 0 {
		q.Set("tickers", strings.Join(tickers, ","))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL + "/v1/feed"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var out []RawFeedItem
	if err := c.call(ctx, func() error {
		return c.http.GetJSON(ctx, u, &out)
	}); err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	return out, nil
}

func (c *Client) mutate(ctx context.Context, op, id, symbol string) ([]string, error) {
	var out watchlistResponse
	body := map[string]string{"ticker": symbol}
	if err := c.call(ctx, func() error {
		return c.http.PostJSONInto(ctx, c.watchlistURL(op, id), body, &out)
	}); err != nil {
		return nil, fmt.Errorf("watchlist%s %s: %w", op, symbol, err)
	}
	if out.Success != nil && !*out.Success {
		return nil, fmt.Errorf("watchlist%s %s: %w: %s", op, symbol, ErrRejected, out.Message)
	}
	return out.Watchlist, nil
}

func (c *Client) watchlistURL(op, id string) string {
	u := c.baseURL + "/v1/watchlist" + op
	if id != "" {
		u += "?user_id=" + url.QueryEscape(id)
	}
	return u
}

// call runs fn through the breaker; an open breaker maps to ErrConnection
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", contracts.ErrConnection, err)
	}
	return err
}

func isClientError(err error) bool {
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}
