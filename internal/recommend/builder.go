// Package recommend packages producer output into a RecommendationEnvelope:
// evidence is normalized, sub-scores aggregated and every ticker classified
// locally so the envelope obeys the same trust rules as the live board.
package recommend

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/marketlens/backend/internal/classifier"
	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/ensemble"
	"github.com/wonny/marketlens/backend/internal/evidence"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/internal/producer"
	"github.com/wonny/marketlens/backend/pkg/logger"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

// DefaultNotes are attached when the producer sends none
var DefaultNotes = contracts.EnvelopeNotes{
	PoliticianClaimsPolicy: "verify with official filings",
	DataRetentionHint:      "posts summarized and anonymized",
}

// Request is one chat question
type Request struct {
	Query       string
	WatchlistID string
	Tickers     []string // empty scopes to the whole watchlist
	WebSearch   bool
}

// Generator produces raw envelopes
type Generator interface {
	Generate(ctx context.Context, req producer.GenerateRequest) (*producer.RawEnvelope, error)
}

// Scoper validates a ticker scope against the watchlist
type Scoper interface {
	ID() string
	Scope(symbols []string) ([]string, error)
}

// Options configure a Builder
type Options struct {
	Weights    contracts.EnsembleWeights
	PolicyHash string
	Retry      RetryConfig
	Cache      *redis.Cache // optional; keeps envelopes for the explain sidebar
	Index      *Index       // optional; latest recommendation per ticker
}

// Builder assembles envelopes. It holds no per-call state.
type Builder struct {
	gen        Generator
	scope      Scoper
	classifier *classifier.Classifier
	rules      *evidence.Rules
	opts       Options
	log        *logger.Logger
	now        func() time.Time
}

// NewBuilder creates a builder. A nil rules value uses the default allow-list.
func NewBuilder(gen Generator, scope Scoper, cls *classifier.Classifier, rules *evidence.Rules, opts Options, log *logger.Logger) *Builder {
	if rules == nil {
		rules = evidence.DefaultRules()
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetry
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		gen:        gen,
		scope:      scope,
		classifier: cls,
		rules:      rules,
		opts:       opts,
		log:        log.WithComponent("recommend"),
		now:        time.Now,
	}
}

// Build answers req with a complete envelope or fails with
// ErrGenerationFailed. No partial envelope is ever returned.
func (b *Builder) Build(ctx context.Context, req Request) (*contracts.RecommendationEnvelope, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("query is empty: %w", contracts.ErrOutOfRange)
	}

	tickers, err := b.scope.Scope(req.Tickers)
	if err != nil {
		return nil, err
	}

	watchlistID := req.WatchlistID
	if watchlistID == "" {
		watchlistID = b.scope.ID()
	}

	genReq := producer.GenerateRequest{
		Query:       query,
		Tickers:     tickers,
		WebSearch:   req.WebSearch,
		WatchlistID: watchlistID,
	}

	var raw *producer.RawEnvelope
	err = retry(ctx, b.opts.Retry, func(attempt int, delay time.Duration, err error) {
		b.log.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("Retrying envelope generation")
	}, func() error {
		var gerr error
		raw, gerr = b.gen.Generate(ctx, genReq)
		return gerr
	})
	if err != nil {
		metrics.Envelope(false)
		return nil, fmt.Errorf("%w: %w", contracts.ErrGenerationFailed, err)
	}

	env, err := b.assemble(query, watchlistID, tickers, raw)
	if err != nil {
		b.log.WithError(err).Warn("Producer envelope rejected")
		metrics.Envelope(false)
		return nil, fmt.Errorf("%w: %w", contracts.ErrGenerationFailed, err)
	}

	metrics.Envelope(true)
	if b.opts.Index != nil {
		b.opts.Index.Record(env)
	}
	if b.opts.Cache != nil {
		if err := b.opts.Cache.Set(ctx, redis.EnvelopeKey(env.ChatID), env, redis.TTLEnvelope); err != nil {
			b.log.WithError(err).Warn("Failed to cache envelope")
		}
	}

	b.log.WithFields(map[string]interface{}{
		"chat_id":         env.ChatID,
		"recommendations": len(env.Recommendations),
		"confidence":      env.GlobalConfidence,
	}).Info("Envelope built")

	return env, nil
}

// Lookup returns a previously built envelope from the cache
func (b *Builder) Lookup(ctx context.Context, chatID string) (*contracts.RecommendationEnvelope, bool, error) {
	if b.opts.Cache == nil {
		return nil, false, nil
	}
	var env contracts.RecommendationEnvelope
	found, err := b.opts.Cache.Get(ctx, redis.EnvelopeKey(chatID), &env)
	if err != nil || !found {
		return nil, false, err
	}
	return &env, true, nil
}

func (b *Builder) assemble(query, watchlistID string, scope []string, raw *producer.RawEnvelope) (*contracts.RecommendationEnvelope, error) {
	if raw == nil {
		return nil, fmt.Errorf("empty producer response: %w", contracts.ErrParse)
	}

	now := b.now().UTC()
	inScope := make(map[string]bool, len(scope))
	for _, s := range scope {
		inScope[s] = true
	}

	weights := b.opts.Weights
	if weights.Sum() == 0 {
		weights = ensemble.EqualWeights
	}

	recs := make([]contracts.Recommendation, 0, len(raw.Recommendations))
	seen := make(map[string]bool, len(raw.Recommendations))
	var lowConf []string

	for _, rr := range raw.Recommendations {
		ticker := contracts.NormalizeSymbol(rr.Ticker)
		if ticker == "" {
			return nil, fmt.Errorf("recommendation without ticker: %w", contracts.ErrParse)
		}
		if seen[ticker] {
			return nil, fmt.Errorf("%s: %w", ticker, contracts.ErrDuplicateTicker)
		}
		seen[ticker] = true
		if !inScope[ticker] {
			b.log.WithField("ticker", ticker).Warn("Dropping recommendation outside request scope")
			continue
		}

		rec, err := b.recommendation(ticker, rr, weights, now)
		if err != nil {
			return nil, err
		}
		if rec.Signal.LowConfidence {
			lowConf = append(lowConf, ticker)
		}
		recs = append(recs, rec)
	}

	global, err := globalConfidence(raw.GlobalConfidence, recs)
	if err != nil {
		return nil, err
	}

	explain := contracts.Explainability{
		Ensemble:                 weights,
		PolicyHash:               b.opts.PolicyHash,
		TopContributingSentences: raw.Explainability.TopContributingSentences,
		UncertaintyReason:        raw.Explainability.UncertaintyReason,
	}
	if explain.TopContributingSentences == nil {
		explain.TopContributingSentences = []contracts.SentenceScore{}
	}
	if explain.UncertaintyReason == "" && len(lowConf) > 0 {
		explain.UncertaintyReason = "Low confidence for " + strings.Join(lowConf, ", ")
	}

	notes := DefaultNotes
	if raw.Notes != nil {
		if raw.Notes.PoliticianClaimsPolicy != "" {
			notes.PoliticianClaimsPolicy = raw.Notes.PoliticianClaimsPolicy
		}
		if raw.Notes.DataRetentionHint != "" {
			notes.DataRetentionHint = raw.Notes.DataRetentionHint
		}
	}

	return &contracts.RecommendationEnvelope{
		ChatID:           uuid.NewString(),
		GeneratedAt:      now,
		Query:            query,
		WatchlistID:      watchlistID,
		Summary:          raw.Summary,
		GlobalConfidence: global,
		Recommendations:  recs,
		Explainability:   explain,
		Disclaimer:       contracts.DefaultDisclaimer,
		Notes:            notes,
	}, nil
}

func (b *Builder) recommendation(ticker string, rr producer.RawRecommendation, weights contracts.EnsembleWeights, now time.Time) (contracts.Recommendation, error) {
	if rr.Confidence == nil {
		return contracts.Recommendation{}, fmt.Errorf("%s: missing confidence: %w", ticker, contracts.ErrParse)
	}
	for _, item := range rr.Drivers {
		if err := evidence.Validate(item); err != nil {
			return contracts.Recommendation{}, fmt.Errorf("%s: %w", ticker, err)
		}
	}
	drivers := b.rules.NormalizeAll(rr.Drivers)

	var (
		score float64
		ens   *contracts.EnsembleScore
	)
	switch {
	case rr.Ensemble != nil:
		es := contracts.EnsembleScore{
			FinBERT: rr.Ensemble.FinBERT,
			LLM:     rr.Ensemble.LLM,
			Lexicon: rr.Ensemble.Lexicon,
			Weights: weights,
		}
		combined, _, err := ensemble.CombineOrDefault(es)
		if err != nil {
			return contracts.Recommendation{}, fmt.Errorf("%s ensemble: %w", ticker, err)
		}
		score, ens = combined, &es
	case rr.Score != nil:
		score = *rr.Score
	default:
		return contracts.Recommendation{}, fmt.Errorf("%s: missing score: %w", ticker, contracts.ErrParse)
	}

	sig, degraded, err := b.classifier.ClassifyOrNeutral(classifier.Input{
		Ticker:     ticker,
		Score:      score,
		Confidence: *rr.Confidence,
		Evidence:   drivers,
		Timestamp:  now,
	})
	if err != nil {
		return contracts.Recommendation{}, err
	}
	if degraded {
		drivers = []contracts.EvidenceItem{}
	}

	if a := contracts.Action(rr.Action); a.Valid() && a != sig.Action {
		b.log.WithFields(map[string]interface{}{
			"ticker":   ticker,
			"producer": rr.Action,
			"local":    string(sig.Action),
		}).Debug("Producer action differs from local classification")
	}

	return contracts.Recommendation{
		Ticker:    ticker,
		Signal:    sig,
		Ensemble:  ens,
		Rationale: rr.Rationale,
		Drivers:   drivers,
	}, nil
}

// globalConfidence uses the producer's value when present, else the mean
func globalConfidence(v *float64, recs []contracts.Recommendation) (float64, error) {
	if v != nil {
		if math.IsNaN(*v) || *v < 0 || *v > 1 {
			return 0, fmt.Errorf("global confidence %v: %w", *v, contracts.ErrOutOfRange)
		}
		return *v, nil
	}
	if len(recs) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range recs {
		sum += r.Signal.Confidence
	}
	return sum / float64(len(recs)), nil
}
