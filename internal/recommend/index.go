package recommend

import (
	"sync"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// Index keeps the most recent recommendation per ticker so the explain
// view can show ensemble sub-scores next to the live signal
type Index struct {
	mu   sync.RWMutex
	recs map[string]contracts.Recommendation
}

// NewIndex creates an empty index
func NewIndex() *Index {
	return &Index{recs: make(map[string]contracts.Recommendation)}
}

// Record stores every recommendation of env, replacing older entries
func (i *Index) Record(env *contracts.RecommendationEnvelope) {
	if env == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, r := range env.Recommendations {
		i.recs[r.Ticker] = r
	}
}

// Get returns the latest recommendation for ticker
func (i *Index) Get(ticker string) (contracts.Recommendation, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	r, ok := i.recs[contracts.NormalizeSymbol(ticker)]
	return r, ok
}
