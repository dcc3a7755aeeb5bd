package producer

import (
	"encoding/json"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// GenerateRequest is the body of POST /v1/rag_chat
type GenerateRequest struct {
	Query       string   `json:"query"`
	Tickers     []string `json:"tickers"`
	WebSearch   bool     `json:"web_search"`
	WatchlistID string   `json:"watchlist_id,omitempty"`
}

// SubScores are the per-model sentiment scores for one ticker
type SubScores struct {
	FinBERT float64 `json:"finbert"`
	LLM     float64 `json:"llm"`
	Lexicon float64 `json:"lexicon"`
}

// RawRecommendation is one producer recommendation before classification
type RawRecommendation struct {
	Ticker     string                   `json:"ticker"`
	Action     string                   `json:"action"`
	Score      *float64                 `json:"score"`
	Confidence *float64                 `json:"confidence"`
	Rationale  string                   `json:"rationale"`
	Drivers    []contracts.EvidenceItem `json:"drivers"`
	Ensemble   *SubScores               `json:"ensemble,omitempty"`
	LLMJSON    json.RawMessage          `json:"llm_json,omitempty"`
}

// RawEnvelope is the producer's chat response
type RawEnvelope struct {
	ChatID           string                   `json:"chat_id"`
	GeneratedAt      string                   `json:"generated_at"`
	Query            string                   `json:"query"`
	Summary          string                   `json:"summary"`
	Disclaimer       string                   `json:"disclaimer"`
	Recommendations  []RawRecommendation      `json:"recommendations"`
	GlobalConfidence *float64                 `json:"global_confidence"`
	Explainability   RawExplainability        `json:"explainability"`
	Notes            *contracts.EnvelopeNotes `json:"notes,omitempty"`
}

// RawExplainability is the producer's explainability block
type RawExplainability struct {
	Ensemble                 *contracts.EnsembleWeights `json:"ensemble,omitempty"`
	TopContributingSentences []contracts.SentenceScore  `json:"top_contributing_sentences"`
	UncertaintyReason        string                     `json:"uncertainty_reason,omitempty"`
}

// watchlistResponse is the producer's watchlist payload
type watchlistResponse struct {
	Success   *bool    `json:"success,omitempty"`
	Watchlist []string `json:"watchlist"`
	Message   string   `json:"message,omitempty"`
}

// RawFeedItem is one producer feed record before normalization.
// Sentiment arrives either as a label or as a numeric score.
type RawFeedItem struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	Text        string          `json:"text"`
	Sentiment   json.RawMessage `json:"sentiment"`
	Confidence  *float64        `json:"confidence"`
	Timestamp   string          `json:"timestamp"`
	URL         string          `json:"url"`
	Entities    []string        `json:"entities"`
	TrustScore  string          `json:"trustScore"`
	SourceTrust *float64        `json:"source_trust"`
}
