// Package policy loads the signal policy file: ensemble weights, classifier
// thresholds and the verified-source allow-list.
package policy

import (
	"github.com/wonny/marketlens/backend/internal/classifier"
	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/evidence"
)

// Policy is the root of the policy YAML
// ⭐ SSOT: every tunable of the explainability model is declared here
type Policy struct {
	Version    string     `yaml:"version" json:"version" default:"v1"`
	Ensemble   Weights    `yaml:"ensemble" json:"ensemble"`
	Classifier Thresholds `yaml:"classifier" json:"classifier"`
	Evidence   Evidence   `yaml:"evidence" json:"evidence"`
}

// Weights are the sub-model weights; they need not sum to 1
type Weights struct {
	FinBERT float64 `yaml:"finbert" json:"finbert" default:"0.5"`
	LLM     float64 `yaml:"llm" json:"llm" default:"0.3"`
	Lexicon float64 `yaml:"lexicon" json:"lexicon" default:"0.2"`
}

// Thresholds configure the classifier bands
type Thresholds struct {
	Threshold           float64 `yaml:"threshold" json:"threshold" default:"2.0"`
	LowConfidenceCutoff float64 `yaml:"low_confidence_cutoff" json:"low_confidence_cutoff" default:"0.5"`
	Convention          string  `yaml:"convention" json:"convention" default:"probability"`
}

// Evidence configures source classification
type Evidence struct {
	VerifiedClasses []string          `yaml:"verified_classes" json:"verified_classes" default:"[\"filing\",\"regulator\",\"mainstream\"]"`
	Sources         map[string]string `yaml:"sources" json:"sources,omitempty"` // extra source → class mappings
}

// EnsembleWeights converts to the contracts type
func (p *Policy) EnsembleWeights() contracts.EnsembleWeights {
	return contracts.EnsembleWeights{
		FinBERT: p.Ensemble.FinBERT,
		LLM:     p.Ensemble.LLM,
		Lexicon: p.Ensemble.Lexicon,
	}
}

// ClassifierConfig converts to the classifier configuration
func (p *Policy) ClassifierConfig() classifier.Config {
	return classifier.Config{
		Threshold:           p.Classifier.Threshold,
		LowConfidenceCutoff: p.Classifier.LowConfidenceCutoff,
		Convention:          classifier.Convention(p.Classifier.Convention),
	}
}

// Rules builds the evidence rules
func (p *Policy) Rules() (*evidence.Rules, error) {
	allowed := make([]evidence.SourceClass, 0, len(p.Evidence.VerifiedClasses))
	for _, s := range p.Evidence.VerifiedClasses {
		c, err := evidence.ParseClass(s)
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, c)
	}

	extra := make(map[string]evidence.SourceClass, len(p.Evidence.Sources))
	for src, cls := range p.Evidence.Sources {
		c, err := evidence.ParseClass(cls)
		if err != nil {
			return nil, err
		}
		extra[src] = c
	}

	return evidence.NewRules(extra, allowed)
}
