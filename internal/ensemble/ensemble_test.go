package ensemble

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		name  string
		score contracts.EnsembleScore
		want  float64
	}{
		{
			name:  "default weights",
			score: contracts.EnsembleScore{FinBERT: 0.82, LLM: 0.78, Lexicon: 0.76, Weights: DefaultWeights},
			want:  0.82*0.5 + 0.78*0.3 + 0.76*0.2,
		},
		{
			name:  "unnormalized weights",
			score: contracts.EnsembleScore{FinBERT: 1, LLM: 0, Lexicon: 0, Weights: contracts.EnsembleWeights{FinBERT: 2, LLM: 2}},
			want:  0.5,
		},
		{
			name:  "single model",
			score: contracts.EnsembleScore{FinBERT: 0.3, LLM: 0.9, Lexicon: 0.1, Weights: contracts.EnsembleWeights{LLM: 1}},
			want:  0.9,
		},
		{
			name:  "identical scores",
			score: contracts.EnsembleScore{FinBERT: 0.4, LLM: 0.4, Lexicon: 0.4, Weights: DefaultWeights},
			want:  0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Combine(tt.score)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCombineConvexity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		s := contracts.EnsembleScore{
			FinBERT: rng.Float64(),
			LLM:     rng.Float64(),
			Lexicon: rng.Float64(),
			Weights: contracts.EnsembleWeights{
				FinBERT: rng.Float64() * 10,
				LLM:     rng.Float64() * 10,
				Lexicon: rng.Float64() * 10,
			},
		}
		if s.Weights.Sum() == 0 {
			continue
		}
		got, err := Combine(s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, minScore(s))
		assert.LessOrEqual(t, got, maxScore(s))

		again, _ := Combine(s)
		assert.Equal(t, got, again, "combine must be deterministic")
	}
}

func TestCombineErrors(t *testing.T) {
	_, err := Combine(contracts.EnsembleScore{FinBERT: 0.5, LLM: 0.5, Lexicon: 0.5})
	assert.ErrorIs(t, err, contracts.ErrDegenerateWeights)

	_, err = Combine(contracts.EnsembleScore{FinBERT: 1.2, LLM: 0.5, Lexicon: 0.5, Weights: DefaultWeights})
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)

	_, err = Combine(contracts.EnsembleScore{FinBERT: 0.5, LLM: -0.1, Lexicon: 0.5, Weights: DefaultWeights})
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)

	_, err = Combine(contracts.EnsembleScore{
		FinBERT: 0.5, LLM: 0.5, Lexicon: 0.5,
		Weights: contracts.EnsembleWeights{FinBERT: -1, LLM: 2},
	})
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)
}

func TestCombineOrDefault(t *testing.T) {
	s := contracts.EnsembleScore{FinBERT: 0.9, LLM: 0.6, Lexicon: 0.3}

	got, fellBack, err := CombineOrDefault(s)
	require.NoError(t, err)
	assert.True(t, fellBack)
	assert.InDelta(t, 0.6, got, 1e-9)

	s.Weights = DefaultWeights
	got, fellBack, err = CombineOrDefault(s)
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.InDelta(t, 0.9*0.5+0.6*0.3+0.3*0.2, got, 1e-9)

	s.LLM = 2
	_, _, err = CombineOrDefault(s)
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)
}

func TestContributions(t *testing.T) {
	s := contracts.EnsembleScore{FinBERT: 0.8, LLM: 0.6, Lexicon: 0.4, Weights: contracts.EnsembleWeights{FinBERT: 5, LLM: 3, Lexicon: 2}}

	parts, err := Contributions(s)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	var total, weights float64
	for _, p := range parts {
		total += p.Share
		weights += p.Weight
	}
	combined, _ := Combine(s)
	assert.InDelta(t, combined, total, 1e-9)
	assert.InDelta(t, 1.0, weights, 1e-9)
	assert.Equal(t, "finbert", parts[0].Model)

	_, err = Contributions(contracts.EnsembleScore{})
	assert.ErrorIs(t, err, contracts.ErrDegenerateWeights)
}
