package evidence

import "github.com/wonny/marketlens/backend/internal/contracts"

// Tier buckets a source trust value for display
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TrustTier maps a trust value to its tier: high ≥0.8, medium ≥0.6, else low
func TrustTier(trust float64) Tier {
	switch {
	case trust >= 0.8:
		return TierHigh
	case trust >= 0.6:
		return TierMedium
	default:
		return TierLow
	}
}

// Summarize derives the trust annotation from already-normalized items.
// Verified iff any item is verified, Unverified iff any item is not.
func Summarize(items []contracts.EvidenceItem) contracts.TrustAnnotation {
	var t contracts.TrustAnnotation
	for _, it := range items {
		if it.Verified {
			t.Verified = true
		} else {
			t.Unverified = true
		}
	}
	return t
}

// TierCounts is the per-tier tally shown in the explain view
type TierCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// CountTiers tallies items by trust tier
func CountTiers(items []contracts.EvidenceItem) TierCounts {
	var c TierCounts
	for _, it := range items {
		switch TrustTier(it.SourceTrust) {
		case TierHigh:
			c.High++
		case TierMedium:
			c.Medium++
		case TierLow:
			c.Low++
		}
	}
	return c
}
