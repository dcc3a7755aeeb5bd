package contracts

import "time"

// EvidenceItem is one piece of supporting material behind a signal.
// Produced upstream and never modified here; normalization returns copies.
type EvidenceItem struct {
	DocID       string    `json:"doc_id"`
	Kind        string    `json:"type"` // policy_declaration, insider_purchase, rumor, filing, ...
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	SourceTrust float64   `json:"source_trust"` // [0,1]
	Verified    bool      `json:"verified"`
}
