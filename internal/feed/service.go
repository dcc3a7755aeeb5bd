// Package feed keeps the live multi-source feed: it polls the producer,
// normalizes records for display and falls back to the last good batch
// cached in Redis when the producer is unavailable.
package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/internal/producer"
	"github.com/wonny/marketlens/backend/pkg/logger"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

// DefaultLimit is the number of items kept per batch
const DefaultLimit = 30

// Source fetches raw feed records
type Source interface {
	Feed(ctx context.Context, tickers []string, limit int) ([]producer.RawFeedItem, error)
}

// Counts are the per-source totals for the filter bar
type Counts struct {
	All     int `json:"all"`
	News    int `json:"news"`
	Twitter int `json:"twitter"`
	Reddit  int `json:"reddit"`
	YouTube int `json:"youtube"`
}

// Batch is one normalized poll result
type Batch struct {
	Items     []contracts.FeedItem `json:"items"`
	Counts    Counts               `json:"counts"`
	Tickers   []string             `json:"tickers"`
	FetchedAt time.Time            `json:"fetched_at"`
	Stale     bool                 `json:"stale"` // served from cache after a failed poll
}

// Filter returns the items of one source; "" or "all" returns everything
func (b Batch) Filter(source string) ([]contracts.FeedItem, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" || source == "all" {
		return b.Items, nil
	}

	want := contracts.FeedSource(source)
	known := false
	for _, s := range contracts.FeedSources {
		if s == want {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("feed source %q: %w", source, contracts.ErrOutOfRange)
	}

	out := make([]contracts.FeedItem, 0, len(b.Items))
	for _, it := range b.Items {
		if it.Source == want {
			out = append(out, it)
		}
	}
	return out, nil
}

// Service polls and holds the latest feed batch
type Service struct {
	src     Source
	cache   *redis.Cache
	ttl     time.Duration
	limit   int
	tickers func() []string
	log     *logger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	latest Batch
}

// Config configures a Service
type Config struct {
	Limit    int
	CacheTTL time.Duration
	Tickers  func() []string // current scope; nil polls without a ticker filter
}

// NewService creates a feed service. cache may be nil.
func NewService(src Source, cache *redis.Cache, cfg Config, log *logger.Logger) *Service {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = redis.TTLFeed
	}
	if cfg.Tickers == nil {
		cfg.Tickers = func() []string { return nil }
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		src:     src,
		cache:   cache,
		ttl:     cfg.CacheTTL,
		limit:   cfg.Limit,
		tickers: cfg.Tickers,
		log:     log.WithComponent("feed"),
		now:     time.Now,
		latest:  Batch{Items: []contracts.FeedItem{}},
	}
}

// Latest returns the last published batch
func (s *Service) Latest() Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Refresh polls the producer once. On failure the cached batch for the same
// ticker set is served as stale; without one the previous batch is kept.
func (s *Service) Refresh(ctx context.Context) (Batch, error) {
	tickers := s.tickers()
	key := redis.FeedKey(tickers)

	raw, err := s.src.Feed(ctx, tickers, s.limit)
	if err != nil {
		if cached, ok := s.fromCache(ctx, key); ok {
			metrics.FeedPoll("cached")
			s.log.WithError(err).Warn("Feed poll failed, serving cached batch")
			cached.Stale = true
			s.publish(cached)
			return cached, nil
		}
		metrics.FeedPoll("error")
		return s.Latest(), fmt.Errorf("feed poll: %w", err)
	}

	batch := s.build(raw, tickers)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, batch, s.ttl); err != nil {
			s.log.WithError(err).Warn("Failed to cache feed batch")
		}
	}
	metrics.FeedPoll("ok")
	s.publish(batch)

	s.log.WithFields(map[string]interface{}{
		"items":   len(batch.Items),
		"tickers": len(tickers),
	}).Debug("Feed refreshed")
	return batch, nil
}

func (s *Service) build(raw []producer.RawFeedItem, tickers []string) Batch {
	now := s.now()
	items := make([]contracts.FeedItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, Normalize(r, now))
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if len(items) > s.limit {
		items = items[:s.limit]
	}

	return Batch{
		Items:     items,
		Counts:    CountSources(items),
		Tickers:   append([]string(nil), tickers...),
		FetchedAt: now.UTC(),
	}
}

func (s *Service) fromCache(ctx context.Context, key string) (Batch, bool) {
	if s.cache == nil {
		return Batch{}, false
	}
	var b Batch
	found, err := s.cache.Get(ctx, key, &b)
	if err != nil {
		s.log.WithError(err).Warn("Feed cache read failed")
		return Batch{}, false
	}
	return b, found
}

func (s *Service) publish(b Batch) {
	s.mu.Lock()
	s.latest = b
	s.mu.Unlock()
}

// CountSources tallies items per source
func CountSources(items []contracts.FeedItem) Counts {
	c := Counts{All: len(items)}
	for _, it := range items {
		switch it.Source {
		case contracts.FeedNews:
			c.News++
		case contracts.FeedTwitter:
			c.Twitter++
		case contracts.FeedReddit:
			c.Reddit++
		case contracts.FeedYouTube:
			c.YouTube++
		}
	}
	return c
}
