package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/watchlist"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// WatchlistHandler handles watchlist endpoints
type WatchlistHandler struct {
	wl     *watchlist.Watchlist
	logger *logger.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(wl *watchlist.Watchlist, log *logger.Logger) *WatchlistHandler {
	return &WatchlistHandler{wl: wl, logger: log}
}

// WatchlistResponse is the watchlist view
type WatchlistResponse struct {
	Success   bool               `json:"success"`
	ID        string             `json:"id"`
	Watchlist []string           `json:"watchlist"`
	Tickers   []contracts.Ticker `json:"tickers"`
	Capacity  int                `json:"capacity"`
	Version   int64              `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TickerRequest is the body of add/remove
type TickerRequest struct {
	Ticker string `json:"ticker" validate:"required,max=32"`
}

func newWatchlistResponse(s contracts.WatchlistSnapshot) WatchlistResponse {
	return WatchlistResponse{
		Success:   true,
		ID:        s.ID,
		Watchlist: s.Symbols(),
		Tickers:   s.Tickers,
		Capacity:  contracts.MaxWatchlistSize,
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt,
	}
}

// Get returns the current watchlist
// GET /api/watchlist
func (h *WatchlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newWatchlistResponse(h.wl.Snapshot()))
}

// Add appends a ticker
// POST /api/watchlist/add
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req TickerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.wl.Add(r.Context(), req.Ticker)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", req.Ticker).Warn("Watchlist add failed")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newWatchlistResponse(snap))
}

// Remove deletes a ticker
// POST /api/watchlist/remove
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req TickerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	snap, err := h.wl.Remove(r.Context(), req.Ticker)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", req.Ticker).Warn("Watchlist remove failed")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newWatchlistResponse(snap))
}
