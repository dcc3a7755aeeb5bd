package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/ensemble"
	"github.com/wonny/marketlens/backend/internal/evidence"
	"github.com/wonny/marketlens/backend/internal/recommend"
	"github.com/wonny/marketlens/backend/internal/stream"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// SignalsHandler serves the merged live signals and insights
type SignalsHandler struct {
	board    *stream.SignalBoard
	insights *stream.InsightBoard
	index    *recommend.Index
	logger   *logger.Logger
}

// NewSignalsHandler creates a new signals handler. index may be nil.
func NewSignalsHandler(board *stream.SignalBoard, insights *stream.InsightBoard, index *recommend.Index, log *logger.Logger) *SignalsHandler {
	return &SignalsHandler{board: board, insights: insights, index: index, logger: log}
}

// List returns the latest signal snapshot
// GET /api/signals
func (h *SignalsHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.board.Snapshot())
}

// ExplainResponse is the explain-signal view
type ExplainResponse struct {
	Signal        contracts.Signal         `json:"signal"`
	TrustLabels   []string                 `json:"trust_labels"`
	Tiers         evidence.TierCounts      `json:"tiers"`
	History       []float64                `json:"history"`
	Evidence      []contracts.EvidenceItem `json:"evidence"`
	Ensemble      *contracts.EnsembleScore `json:"ensemble,omitempty"`
	Contributions []ensemble.Contribution  `json:"contributions,omitempty"`
	Rationale     string                   `json:"rationale,omitempty"`
}

// Explain breaks one ticker's signal down for the explain modal
// GET /api/signals/{ticker}/explain
func (h *SignalsHandler) Explain(w http.ResponseWriter, r *http.Request) {
	ticker := contracts.NormalizeSymbol(mux.Vars(r)["ticker"])
	snap := h.board.Snapshot()

	sig, ok := snap.Get(ticker)
	var rec contracts.Recommendation
	var haveRec bool
	if h.index != nil {
		rec, haveRec = h.index.Get(ticker)
	}
	if !ok && haveRec {
		sig, ok = rec.Signal, true
	}
	if !ok {
		respondErr(w, fmt.Errorf("signal for %s: %w", ticker, contracts.ErrNotFound))
		return
	}

	items := sig.Evidence
	if len(items) == 0 && haveRec {
		items = rec.Drivers
	}
	if items == nil {
		items = []contracts.EvidenceItem{}
	}

	history := snap.History[ticker]
	if history == nil {
		history = []float64{}
	}

	resp := ExplainResponse{
		Signal:      sig,
		TrustLabels: sig.Trust.Labels(),
		Tiers:       evidence.CountTiers(items),
		History:     history,
		Evidence:    items,
	}
	if haveRec && rec.Ensemble != nil {
		resp.Ensemble = rec.Ensemble
		resp.Rationale = rec.Rationale
		if contribs, err := ensemble.Contributions(*rec.Ensemble); err == nil {
			resp.Contributions = contribs
		} else {
			h.logger.WithError(err).WithField("ticker", ticker).Warn("Cannot break down ensemble")
		}
	} else if haveRec {
		resp.Rationale = rec.Rationale
	}

	respondJSON(w, http.StatusOK, resp)
}

// Insights returns the latest market insight
// GET /api/insights
func (h *SignalsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	ins, ok := h.insights.Latest()
	if !ok {
		respondErr(w, fmt.Errorf("insight: %w", contracts.ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, ins)
}
