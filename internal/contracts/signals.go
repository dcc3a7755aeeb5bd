package contracts

import (
	"fmt"
	"time"
)

// SignalType is the directional classification of a signal
type SignalType string

const (
	SignalBullish SignalType = "bullish"
	SignalBearish SignalType = "bearish"
	SignalNeutral SignalType = "neutral"
)

// Valid reports whether t is one of the known types
func (t SignalType) Valid() bool {
	switch t {
	case SignalBullish, SignalBearish, SignalNeutral:
		return true
	}
	return false
}

// Action is the closed set of actionable labels.
// long and buy both map to bullish; see DESIGN.md for the decision.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionLong  Action = "long"
	ActionShort Action = "short"
	ActionHold  Action = "hold"
)

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionLong, ActionShort, ActionHold:
		return true
	}
	return false
}

// Type returns the signal type implied by the action
func (a Action) Type() SignalType {
	switch a {
	case ActionBuy, ActionLong:
		return SignalBullish
	case ActionShort:
		return SignalBearish
	case ActionHold:
		return SignalNeutral
	}
	return SignalNeutral
}

// ParseAction converts a wire string into an Action
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("action %q: %w", s, ErrOutOfRange)
	}
	return a, nil
}

// TrustAnnotation carries the two independent trust flags.
// Both are true when the evidence set mixes verified and unverified items.
type TrustAnnotation struct {
	Verified   bool `json:"verified"`
	Unverified bool `json:"unverified"`
}

// Labels returns the badge labels to render, VERIFIED first
func (t TrustAnnotation) Labels() []string {
	labels := make([]string, 0, 2)
	if t.Verified {
		labels = append(labels, "VERIFIED")
	}
	if t.Unverified {
		labels = append(labels, "UNVERIFIED")
	}
	return labels
}

// EnsembleWeights is the weight configuration for the three sub-models.
// Weights are non-negative and need not sum to 1.
type EnsembleWeights struct {
	FinBERT float64 `json:"finbert" yaml:"finbert"`
	LLM     float64 `json:"llm" yaml:"llm"`
	Lexicon float64 `json:"lexicon" yaml:"lexicon"`
}

// Sum returns the total weight
func (w EnsembleWeights) Sum() float64 {
	return w.FinBERT + w.LLM + w.Lexicon
}

// EnsembleScore is a set of sub-scores in [0,1] plus the weights used to combine them
type EnsembleScore struct {
	FinBERT float64         `json:"finbert"`
	LLM     float64         `json:"llm"`
	Lexicon float64         `json:"lexicon"`
	Weights EnsembleWeights `json:"weights"`
}

// Signal is a directional, timestamped classification for one ticker.
// Signals are superseded by newer ones, never edited in place.
type Signal struct {
	ID            string          `json:"id"`
	Ticker        string          `json:"ticker"`
	Type          SignalType      `json:"type"`
	Score         float64         `json:"score"`
	Confidence    float64         `json:"confidence"`
	Action        Action          `json:"action"`
	Trust         TrustAnnotation `json:"trust"`
	LowConfidence bool            `json:"low_confidence"`
	Advisory      string          `json:"advisory,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	EvidenceCount int             `json:"evidence_count"`
	Evidence      []EvidenceItem  `json:"evidence,omitempty"`
}

// IsDirectional reports whether the signal makes a bullish or bearish claim
func (s Signal) IsDirectional() bool {
	return s.Type == SignalBullish || s.Type == SignalBearish
}
