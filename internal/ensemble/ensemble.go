// Package ensemble combines the three sentiment sub-model scores into one
// weighted mean. Everything here is pure and deterministic.
package ensemble

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// DefaultWeights is the producer's standard mix
var DefaultWeights = contracts.EnsembleWeights{FinBERT: 0.5, LLM: 0.3, Lexicon: 0.2}

// EqualWeights is the fallback when configured weights are degenerate
var EqualWeights = contracts.EnsembleWeights{FinBERT: 1, LLM: 1, Lexicon: 1}

// Combine returns Σ(s_i·w_i)/Σ(w_i).
// The result always lies between the smallest and largest sub-score.
func Combine(score contracts.EnsembleScore) (float64, error) {
	if err := validate(score); err != nil {
		return 0, err
	}

	w := score.Weights
	sum := w.Sum()
	if sum == 0 {
		return 0, contracts.ErrDegenerateWeights
	}

	combined := (score.FinBERT*w.FinBERT + score.LLM*w.LLM + score.Lexicon*w.Lexicon) / sum
	return clamp(combined, minScore(score), maxScore(score)), nil
}

// CombineOrDefault combines with the given weights and falls back to equal
// weights when they sum to zero. fellBack reports whether the fallback ran.
func CombineOrDefault(score contracts.EnsembleScore) (combined float64, fellBack bool, err error) {
	combined, err = Combine(score)
	if errors.Is(err, contracts.ErrDegenerateWeights) {
		score.Weights = EqualWeights
		combined, err = Combine(score)
		return combined, true, err
	}
	return combined, false, err
}

// Contribution is one sub-model's share of the combined score
type Contribution struct {
	Model  string  `json:"model"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"` // normalized so the three sum to 1
	Share  float64 `json:"share"`  // Score × Weight
}

// Contributions breaks the combined score down per sub-model for the explain view
func Contributions(score contracts.EnsembleScore) ([]Contribution, error) {
	if err := validate(score); err != nil {
		return nil, err
	}
	sum := score.Weights.Sum()
	if sum == 0 {
		return nil, contracts.ErrDegenerateWeights
	}

	w := score.Weights
	parts := []Contribution{
		{Model: "finbert", Score: score.FinBERT, Weight: w.FinBERT / sum},
		{Model: "llm", Score: score.LLM, Weight: w.LLM / sum},
		{Model: "lexicon", Score: score.Lexicon, Weight: w.Lexicon / sum},
	}
	for i := range parts {
		parts[i].Share = parts[i].Score * parts[i].Weight
	}
	return parts, nil
}

// ValidateWeights rejects negative or NaN weights
func ValidateWeights(w contracts.EnsembleWeights) error {
	names := [...]string{"finbert", "llm", "lexicon"}
	for i, v := range [...]float64{w.FinBERT, w.LLM, w.Lexicon} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("weight %s=%v: %w", names[i], v, contracts.ErrOutOfRange)
		}
	}
	return nil
}

func validate(score contracts.EnsembleScore) error {
	subs := [...]struct {
		name string
		v    float64
	}{
		{"finbert", score.FinBERT},
		{"llm", score.LLM},
		{"lexicon", score.Lexicon},
	}
	for _, s := range subs {
		if math.IsNaN(s.v) || s.v < 0 || s.v > 1 {
			return fmt.Errorf("sub-score %s=%v: %w", s.name, s.v, contracts.ErrOutOfRange)
		}
	}
	return ValidateWeights(score.Weights)
}

func minScore(s contracts.EnsembleScore) float64 {
	return math.Min(s.FinBERT, math.Min(s.LLM, s.Lexicon))
}

func maxScore(s contracts.EnsembleScore) float64 {
	return math.Max(s.FinBERT, math.Max(s.LLM, s.Lexicon))
}

// clamp absorbs floating point drift so the convexity bound holds exactly
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
