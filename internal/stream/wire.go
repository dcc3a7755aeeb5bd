package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// wireSignal is one record of the producer's signals stream
type wireSignal struct {
	ID             string                   `json:"id"`
	Ticker         string                   `json:"ticker"`
	Type           string                   `json:"type"`
	Score          *float64                 `json:"score"`
	Confidence     *float64                 `json:"confidence"`
	Action         string                   `json:"action"`
	Timestamp      time.Time                `json:"timestamp"`
	EvidenceCount  int                      `json:"evidenceCount"`
	EvidenceCount2 int                      `json:"evidence_count"`
	Evidence       []contracts.EvidenceItem `json:"evidence"`
}

// wireInsight is one message of the producer's insights stream
type wireInsight struct {
	Summary       string       `json:"summary"`
	TopSentiments []wireSignal `json:"top_sentiments"`
	Sources       []string     `json:"sources"`
}

// decodeSignals decodes a whole batch. Any malformed record rejects the batch.
func decodeSignals(payload []byte) ([]contracts.Signal, error) {
	var raw []wireSignal
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode signal batch: %w: %v", contracts.ErrParse, err)
	}

	out := make([]contracts.Signal, 0, len(raw))
	for i, w := range raw {
		sig, err := w.toSignal()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, sig)
	}
	return out, nil
}

func decodeInsight(payload []byte) (contracts.Insight, error) {
	var raw wireInsight
	if err := json.Unmarshal(payload, &raw); err != nil {
		return contracts.Insight{}, fmt.Errorf("decode insight: %w: %v", contracts.ErrParse, err)
	}

	top := make([]contracts.Signal, 0, len(raw.TopSentiments))
	for i, w := range raw.TopSentiments {
		sig, err := w.toSignal()
		if err != nil {
			return contracts.Insight{}, fmt.Errorf("top_sentiments[%d]: %w", i, err)
		}
		top = append(top, sig)
	}
	sources := raw.Sources
	if sources == nil {
		sources = []string{}
	}

	return contracts.Insight{
		Summary:       raw.Summary,
		TopSentiments: top,
		Sources:       sources,
	}, nil
}

func (w wireSignal) toSignal() (contracts.Signal, error) {
	ticker := contracts.NormalizeSymbol(w.Ticker)
	if ticker == "" {
		return contracts.Signal{}, fmt.Errorf("missing ticker: %w", contracts.ErrParse)
	}

	typ := contracts.SignalType(w.Type)
	if !typ.Valid() {
		return contracts.Signal{}, fmt.Errorf("%s: type %q: %w", ticker, w.Type, contracts.ErrParse)
	}

	action, err := contracts.ParseAction(w.Action)
	if err != nil {
		return contracts.Signal{}, fmt.Errorf("%s: action %q: %w", ticker, w.Action, contracts.ErrParse)
	}
	if action.Type() != typ {
		return contracts.Signal{}, fmt.Errorf("%s: action %s contradicts type %s: %w", ticker, action, typ, contracts.ErrParse)
	}

	if w.Score == nil || math.IsNaN(*w.Score) || math.IsInf(*w.Score, 0) {
		return contracts.Signal{}, fmt.Errorf("%s: missing score: %w", ticker, contracts.ErrParse)
	}
	if w.Confidence == nil || math.IsNaN(*w.Confidence) || *w.Confidence < 0 || *w.Confidence > 1 {
		return contracts.Signal{}, fmt.Errorf("%s: confidence outside [0,1]: %w", ticker, contracts.ErrParse)
	}
	if w.Timestamp.IsZero() {
		return contracts.Signal{}, fmt.Errorf("%s: missing timestamp: %w", ticker, contracts.ErrParse)
	}

	count := w.EvidenceCount
	if count == 0 {
		count = w.EvidenceCount2
	}
	if len(w.Evidence) > count {
		count = len(w.Evidence)
	}

	return contracts.Signal{
		ID:            w.ID,
		Ticker:        ticker,
		Type:          typ,
		Score:         *w.Score,
		Confidence:    *w.Confidence,
		Action:        action,
		Timestamp:     w.Timestamp,
		EvidenceCount: count,
		Evidence:      w.Evidence,
	}, nil
}
