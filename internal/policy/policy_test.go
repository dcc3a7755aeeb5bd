package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/classifier"
	"github.com/wonny/marketlens/backend/internal/evidence"
)

func TestDefault(t *testing.T) {
	p := Default()

	assert.Equal(t, "v1", p.Version)
	assert.Equal(t, 0.5, p.Ensemble.FinBERT)
	assert.Equal(t, 0.3, p.Ensemble.LLM)
	assert.Equal(t, 0.2, p.Ensemble.Lexicon)
	assert.Equal(t, 2.0, p.Classifier.Threshold)
	assert.Equal(t, 0.5, p.Classifier.LowConfidenceCutoff)
	assert.Equal(t, "probability", p.Classifier.Convention)
	assert.Equal(t, []string{"filing", "regulator", "mainstream"}, p.Evidence.VerifiedClasses)
	assert.NoError(t, Validate(p))
	assert.Empty(t, Warnings(p))
}

func TestLoadRepositoryPolicy(t *testing.T) {
	path := "../../configs/policy.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("policy file not found")
	}

	p, data, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "filing", p.Evidence.Sources["company investor relations"])

	rules, err := p.Rules()
	require.NoError(t, err)
	assert.Equal(t, evidence.ClassFiling, rules.Classify("Company Investor Relations"))
}

func TestLoadEmptyPath(t *testing.T) {
	p, data, err := Load("")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, Default(), p)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParsePartialKeepsDefaults(t *testing.T) {
	p, err := Parse([]byte("classifier:\n  threshold: 1.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, p.Classifier.Threshold)
	assert.Equal(t, 0.5, p.Classifier.LowConfidenceCutoff)
	assert.Equal(t, 0.5, p.Ensemble.FinBERT)
}

func TestParseEmptyDocument(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("ensemble:\n  finbret: 0.5\n"))
	assert.Error(t, err)
}

func TestParseReplacesVerifiedClasses(t *testing.T) {
	p, err := Parse([]byte("evidence:\n  verified_classes: [filing]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"filing"}, p.Evidence.VerifiedClasses)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"all zero weights", "ensemble: {finbert: 0, llm: 0, lexicon: 0}", "ensemble"},
		{"negative weight", "ensemble: {finbert: -1}", "ensemble.finbert"},
		{"threshold too small", "classifier: {threshold: 0.5}", "classifier.threshold"},
		{"threshold too large", "classifier: {threshold: 3.5}", "classifier.threshold"},
		{"threshold NaN", "classifier: {threshold: .nan}", "classifier.threshold"},
		{"cutoff NaN", "classifier: {low_confidence_cutoff: .nan}", "classifier.low_confidence_cutoff"},
		{"cutoff one", "classifier: {low_confidence_cutoff: 1}", "classifier.low_confidence_cutoff"},
		{"bad convention", "classifier: {convention: logit}", "classifier.convention"},
		{"empty allow-list", "evidence: {verified_classes: []}", "evidence.verified_classes"},
		{"social allow-listed", "evidence: {verified_classes: [social]}", "evidence.verified_classes"},
		{"bad source class", "evidence: {sources: {blog: trusted}}", "evidence.sources.blog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %T: %v", err, err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestWarnings(t *testing.T) {
	p, err := Parse([]byte("ensemble: {finbert: 2, llm: 1, lexicon: 1}\nclassifier: {threshold: 2.8, low_confidence_cutoff: 0.9}\n"))
	require.NoError(t, err)

	codes := map[string]bool{}
	for _, w := range Warnings(p) {
		codes[w.Code] = true
	}
	assert.True(t, codes["WEIGHTS_NOT_NORMALIZED"])
	assert.True(t, codes["THRESHOLD_WIDE"])
	assert.True(t, codes["CUTOFF_HIGH"])
}

func TestHash(t *testing.T) {
	a := Default()
	h1, err := Hash(a)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, _ := Hash(Default())
	assert.Equal(t, h1, h2, "hash not deterministic")

	b := Default()
	b.Classifier.Threshold = 1.5
	h3, _ := Hash(b)
	assert.NotEqual(t, h1, h3)
}

func TestConverters(t *testing.T) {
	p := Default()

	w := p.EnsembleWeights()
	assert.Equal(t, 1.0, w.Sum())

	cfg := p.ClassifierConfig()
	assert.Equal(t, classifier.ConventionProbability, cfg.Convention)
	assert.NoError(t, cfg.Validate())

	rules, err := p.Rules()
	require.NoError(t, err)
	assert.True(t, rules.Allowed(evidence.ClassMainstream))
	assert.False(t, rules.Allowed(evidence.ClassSocial))
}
