package commands

import (
	"context"
	"fmt"

	"github.com/wonny/marketlens/backend/internal/classifier"
	"github.com/wonny/marketlens/backend/internal/evidence"
	"github.com/wonny/marketlens/backend/internal/policy"
	"github.com/wonny/marketlens/backend/internal/producer"
	"github.com/wonny/marketlens/backend/internal/recommend"
	"github.com/wonny/marketlens/backend/internal/watchlist"
	"github.com/wonny/marketlens/backend/pkg/config"
	"github.com/wonny/marketlens/backend/pkg/logger"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

// core holds the components every command shares
type core struct {
	cfg        *config.Config
	log        *logger.Logger
	redis      *redis.Client
	policy     *policy.Policy
	policyHash string
	rules      *evidence.Rules
	classifier *classifier.Classifier
	producer   *producer.Client
	watchlist  *watchlist.Watchlist
}

// newCore loads config and policy and connects the producer client
func newCore(ctx context.Context) (*core, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Load signal policy
	pol, _, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	for _, w := range policy.Warnings(pol) {
		log.WithField("code", w.Code).Warn(w.Message)
	}
	hash, err := policy.Hash(pol)
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}
	rules, err := pol.Rules()
	if err != nil {
		return nil, fmt.Errorf("policy rules: %w", err)
	}
	cls, err := classifier.New(pol.ClassifierConfig(), rules)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	// 4. Connect to Redis (disabled unless REDIS_ENABLED)
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching disabled")
		rdb = redis.Disabled()
	}

	// 5. Producer client doubles as the watchlist store
	prod := producer.New(cfg, log)
	wl := watchlist.New(cfg.WatchlistID, prod, log)

	log.WithFields(map[string]interface{}{
		"producer":     cfg.Producer.BaseURL,
		"watchlist_id": cfg.WatchlistID,
		"policy_hash":  hash,
		"redis":        rdb.Enabled(),
	}).Debug("Core initialized")

	return &core{
		cfg:        cfg,
		log:        log,
		redis:      rdb,
		policy:     pol,
		policyHash: hash,
		rules:      rules,
		classifier: cls,
		producer:   prod,
		watchlist:  wl,
	}, nil
}

// builder creates the envelope builder. index may be nil.
func (c *core) builder(index *recommend.Index) *recommend.Builder {
	return recommend.NewBuilder(c.producer, c.watchlist, c.classifier, c.rules, recommend.Options{
		Weights:    c.policy.EnsembleWeights(),
		PolicyHash: c.policyHash,
		Retry:      recommend.DefaultRetry,
		Cache:      redis.NewCache(c.redis, "marketlens"),
		Index:      index,
	}, c.log)
}

func (c *core) close() {
	if err := c.redis.Close(); err != nil {
		c.log.WithError(err).Warn("Failed to close redis")
	}
}
