package policy

import (
	"fmt"
	"math"

	"github.com/wonny/marketlens/backend/internal/classifier"
	"github.com/wonny/marketlens/backend/internal/evidence"
)

// ValidationError is a policy violation that stops startup
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a recommendation violation, logged only
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
func Validate(p *Policy) error {
	// === Ensemble ===
	w := p.Ensemble
	for _, f := range []struct {
		field string
		v     float64
	}{
		{"ensemble.finbert", w.FinBERT},
		{"ensemble.llm", w.LLM},
		{"ensemble.lexicon", w.Lexicon},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return ValidationError{f.field, "must be a finite value >= 0"}
		}
	}
	if w.FinBERT+w.LLM+w.Lexicon == 0 {
		return ValidationError{"ensemble", "weights must not all be zero"}
	}

	// === Classifier ===
	c := p.Classifier
	if math.IsNaN(c.Threshold) || c.Threshold < 1 || c.Threshold > 3 {
		return ValidationError{"classifier.threshold", "must be in [1, 3]"}
	}
	if math.IsNaN(c.LowConfidenceCutoff) || c.LowConfidenceCutoff <= 0 || c.LowConfidenceCutoff >= 1 {
		return ValidationError{"classifier.low_confidence_cutoff", "must be in (0, 1)"}
	}
	switch classifier.Convention(c.Convention) {
	case classifier.ConventionProbability, classifier.ConventionSigned:
	default:
		return ValidationError{"classifier.convention", "must be 'probability' or 'signed'"}
	}

	// === Evidence ===
	if len(p.Evidence.VerifiedClasses) == 0 {
		return ValidationError{"evidence.verified_classes", "required"}
	}
	for _, s := range p.Evidence.VerifiedClasses {
		cls, err := evidence.ParseClass(s)
		if err != nil {
			return ValidationError{"evidence.verified_classes", fmt.Sprintf("unknown class %q", s)}
		}
		if !cls.Verifiable() {
			return ValidationError{"evidence.verified_classes", fmt.Sprintf("class %q can never be verified", s)}
		}
	}
	for src, cls := range p.Evidence.Sources {
		if src == "" {
			return ValidationError{"evidence.sources", "empty source name"}
		}
		if _, err := evidence.ParseClass(cls); err != nil {
			return ValidationError{"evidence.sources." + src, fmt.Sprintf("unknown class %q", cls)}
		}
	}

	return nil
}

// Warnings returns recommendation violations that do not block startup
func Warnings(p *Policy) []Warning {
	var out []Warning

	sum := p.Ensemble.FinBERT + p.Ensemble.LLM + p.Ensemble.Lexicon
	if math.Abs(sum-1) > 1e-6 {
		out = append(out, Warning{"WEIGHTS_NOT_NORMALIZED", fmt.Sprintf("ensemble weights sum to %.3f; they are normalized at combine time", sum)})
	}
	if p.Classifier.Threshold > 2.5 {
		out = append(out, Warning{"THRESHOLD_WIDE", "threshold above 2.5 leaves most signals neutral"})
	}
	if p.Classifier.LowConfidenceCutoff > 0.8 {
		out = append(out, Warning{"CUTOFF_HIGH", "most signals will carry a low-confidence advisory"})
	}
	return out
}
