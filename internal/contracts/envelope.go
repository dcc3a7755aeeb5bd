package contracts

import "time"

// DefaultDisclaimer is attached to every envelope
const DefaultDisclaimer = "Research-only — not financial advice."

// Recommendation is one per-ticker entry of an envelope
type Recommendation struct {
	Ticker    string         `json:"ticker"`
	Signal    Signal         `json:"signal"`
	Ensemble  *EnsembleScore `json:"ensemble,omitempty"`
	Rationale string         `json:"rationale"`
	Drivers   []EvidenceItem `json:"drivers"`
}

// SentenceScore is a sentence that contributed to the ensemble outcome
type SentenceScore struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Explainability is the envelope-wide breakdown shown in the chat sidebar
type Explainability struct {
	Ensemble                 EnsembleWeights `json:"ensemble"`
	PolicyHash               string          `json:"policy_hash,omitempty"`
	TopContributingSentences []SentenceScore `json:"top_contributing_sentences"`
	UncertaintyReason        string          `json:"uncertainty_reason,omitempty"`
}

// EnvelopeNotes are fixed policy notes rendered under the answer
type EnvelopeNotes struct {
	PoliticianClaimsPolicy string `json:"politician_claims_policy"`
	DataRetentionHint      string `json:"data_retention_hint"`
}

// RecommendationEnvelope is the packaged response to one query.
// Immutable once built.
type RecommendationEnvelope struct {
	ChatID           string           `json:"chat_id"`
	GeneratedAt      time.Time        `json:"generated_at"`
	Query            string           `json:"query"`
	WatchlistID      string           `json:"watchlist_id,omitempty"`
	Summary          string           `json:"summary"`
	GlobalConfidence float64          `json:"global_confidence"`
	Recommendations  []Recommendation `json:"recommendations"`
	Explainability   Explainability   `json:"explainability"`
	Disclaimer       string           `json:"disclaimer"`
	Notes            EnvelopeNotes    `json:"notes"`
}
