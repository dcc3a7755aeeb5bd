package classifier

import (
	"fmt"
	"math"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// Convention is the scale the combined score is expressed on
type Convention string

const (
	// ConventionProbability scores live in [0,1] with 0.5 as neutral
	ConventionProbability Convention = "probability"
	// ConventionSigned scores live in [-1,1] with 0 as neutral
	ConventionSigned Convention = "signed"
)

// center and unit define the band center ± T·unit
func (c Convention) scale() (center, unit, lo, hi float64, ok bool) {
	switch c {
	case ConventionProbability:
		return 0.5, 0.05, 0, 1, true
	case ConventionSigned:
		return 0, 0.1, -1, 1, true
	}
	return 0, 0, 0, 0, false
}

// Config holds the classification thresholds
type Config struct {
	Threshold           float64    // T, valid [1,3]
	LowConfidenceCutoff float64    // confidence below this carries an advisory
	Convention          Convention
}

// DefaultConfig returns T=2 on the probability scale with a 0.5 cutoff
func DefaultConfig() Config {
	return Config{
		Threshold:           2.0,
		LowConfidenceCutoff: 0.5,
		Convention:          ConventionProbability,
	}
}

// Validate checks the configuration ranges
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 1 || c.Threshold > 3 {
		return fmt.Errorf("threshold %v outside [1,3]: %w", c.Threshold, contracts.ErrOutOfRange)
	}
	if math.IsNaN(c.LowConfidenceCutoff) || c.LowConfidenceCutoff <= 0 || c.LowConfidenceCutoff >= 1 {
		return fmt.Errorf("low confidence cutoff %v outside (0,1): %w", c.LowConfidenceCutoff, contracts.ErrOutOfRange)
	}
	if _, _, _, _, ok := c.Convention.scale(); !ok {
		return fmt.Errorf("convention %q: %w", c.Convention, contracts.ErrOutOfRange)
	}
	return nil
}

// Bands returns the bearish and bullish band edges and the strong-buy edge
func (c Config) Bands() (lower, upper, strong float64) {
	center, unit, _, _, _ := c.Convention.scale()
	width := c.Threshold * unit
	return center - width, center + width, center + 2*width
}
