package contracts

import "errors"

// Error taxonomy shared by every component.
// Callers match with errors.Is; producers wrap with fmt.Errorf("...: %w", err).
var (
	// Aggregation inputs
	ErrDegenerateWeights = errors.New("degenerate weights: sum is zero")
	ErrOutOfRange        = errors.New("value out of range")

	// Classification
	ErrInsufficientEvidence = errors.New("insufficient evidence")

	// Watchlist
	ErrCapacityExceeded = errors.New("watchlist capacity exceeded")
	ErrDuplicateTicker  = errors.New("ticker already in watchlist")
	ErrNotFound         = errors.New("ticker not in watchlist")
	ErrOutOfScope       = errors.New("symbol outside watchlist scope")

	// Streams
	ErrParse      = errors.New("malformed stream payload")
	ErrConnection = errors.New("stream connection error")

	// Recommendation requests
	ErrGenerationFailed = errors.New("recommendation generation failed")
)
