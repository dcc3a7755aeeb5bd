package contracts

import (
	"strings"
	"time"
)

// MaxWatchlistSize is the fixed watchlist capacity N
const MaxWatchlistSize = 6

// Ticker is one tracked instrument
type Ticker struct {
	Symbol        string  `json:"symbol"` // exchange-qualified, e.g. RELIANCE.NS
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// NormalizeSymbol trims and upper-cases a symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// WatchlistSnapshot is an immutable view of the watchlist at one version.
// A new snapshot is published on every committed mutation.
type WatchlistSnapshot struct {
	ID        string    `json:"id"`
	Tickers   []Ticker  `json:"tickers"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Symbols returns the ordered symbols in the snapshot
func (s WatchlistSnapshot) Symbols() []string {
	out := make([]string, len(s.Tickers))
	for i, t := range s.Tickers {
		out[i] = t.Symbol
	}
	return out
}

// Contains reports whether symbol is a member
func (s WatchlistSnapshot) Contains(symbol string) bool {
	symbol = NormalizeSymbol(symbol)
	for _, t := range s.Tickers {
		if t.Symbol == symbol {
			return true
		}
	}
	return false
}

// Len returns the number of tickers
func (s WatchlistSnapshot) Len() int {
	return len(s.Tickers)
}
