// Package classifier turns a combined score, a confidence and an evidence
// set into a directional Signal with an action and trust annotation.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/evidence"
)

// Input is everything the classifier needs for one ticker
type Input struct {
	ID         string // optional; generated when empty
	Ticker     string
	Score      float64
	Confidence float64
	Evidence   []contracts.EvidenceItem
	Timestamp  time.Time
}

// Classifier applies the threshold and low-confidence policies
type Classifier struct {
	cfg   Config
	rules *evidence.Rules
}

// New creates a classifier. A nil rules value uses the default allow-list.
func New(cfg Config, rules *evidence.Rules) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rules == nil {
		rules = evidence.DefaultRules()
	}
	return &Classifier{cfg: cfg, rules: rules}, nil
}

// Config returns the active configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify builds a Signal from in.
// An empty evidence set fails with ErrInsufficientEvidence: no directional
// claim is ever made without support.
func (c *Classifier) Classify(in Input) (contracts.Signal, error) {
	if err := c.checkInput(in); err != nil {
		return contracts.Signal{}, err
	}
	if len(in.Evidence) == 0 {
		return contracts.Signal{}, fmt.Errorf("%s: %w", in.Ticker, contracts.ErrInsufficientEvidence)
	}

	items := c.rules.NormalizeAll(in.Evidence)
	sigType, action := c.decide(in.Score)

	sig := contracts.Signal{
		ID:            signalID(in.ID),
		Ticker:        contracts.NormalizeSymbol(in.Ticker),
		Type:          sigType,
		Score:         in.Score,
		Confidence:    in.Confidence,
		Action:        action,
		Trust:         evidence.Summarize(items),
		Timestamp:     stamp(in.Timestamp),
		EvidenceCount: len(items),
		Evidence:      items,
	}
	c.applyConfidencePolicy(&sig)
	return sig, nil
}

// Neutral builds the "neutral, no signal" value substituted when there is
// no supporting evidence
func (c *Classifier) Neutral(in Input) contracts.Signal {
	score, _, _, _, _ := c.cfg.Convention.scale()
	sig := contracts.Signal{
		ID:         signalID(in.ID),
		Ticker:     contracts.NormalizeSymbol(in.Ticker),
		Type:       contracts.SignalNeutral,
		Score:      score,
		Confidence: in.Confidence,
		Action:     contracts.ActionHold,
		Timestamp:  stamp(in.Timestamp),
		Advisory:   "No supporting evidence: no signal.",
	}
	if sig.Confidence < c.cfg.LowConfidenceCutoff {
		sig.LowConfidence = true
	}
	return sig
}

// ClassifyOrNeutral degrades ErrInsufficientEvidence to Neutral.
// degraded reports whether the substitution happened; other errors propagate.
func (c *Classifier) ClassifyOrNeutral(in Input) (sig contracts.Signal, degraded bool, err error) {
	sig, err = c.Classify(in)
	if errors.Is(err, contracts.ErrInsufficientEvidence) {
		if cerr := c.checkInput(in); cerr != nil {
			return contracts.Signal{}, false, cerr
		}
		return c.Neutral(in), true, nil
	}
	return sig, false, err
}

// Type classifies a bare score without evidence or confidence
func (c *Classifier) Type(score float64) contracts.SignalType {
	t, _ := c.decide(score)
	return t
}

func (c *Classifier) decide(score float64) (contracts.SignalType, contracts.Action) {
	lower, upper, strong := c.cfg.Bands()
	switch {
	case score > upper:
		if score >= strong {
			return contracts.SignalBullish, contracts.ActionBuy
		}
		return contracts.SignalBullish, contracts.ActionLong
	case score < lower:
		return contracts.SignalBearish, contracts.ActionShort
	default:
		return contracts.SignalNeutral, contracts.ActionHold
	}
}

func (c *Classifier) applyConfidencePolicy(sig *contracts.Signal) {
	if sig.Confidence >= c.cfg.LowConfidenceCutoff {
		return
	}
	sig.LowConfidence = true
	sig.Advisory = fmt.Sprintf("Low confidence (%.2f): treat this %s signal as indicative only.", sig.Confidence, sig.Type)
}

func (c *Classifier) checkInput(in Input) error {
	if math.IsNaN(in.Confidence) || in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("%s confidence %v: %w", in.Ticker, in.Confidence, contracts.ErrOutOfRange)
	}
	_, _, lo, hi, _ := c.cfg.Convention.scale()
	if math.IsNaN(in.Score) || in.Score < lo || in.Score > hi {
		return fmt.Errorf("%s score %v: %w", in.Ticker, in.Score, contracts.ErrOutOfRange)
	}
	return nil
}

func signalID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts
}
