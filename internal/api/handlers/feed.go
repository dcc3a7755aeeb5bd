package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/feed"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// FeedHandler serves the live feed
type FeedHandler struct {
	svc    *feed.Service
	logger *logger.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(svc *feed.Service, log *logger.Logger) *FeedHandler {
	return &FeedHandler{svc: svc, logger: log}
}

// FeedQuery are the feed query parameters
type FeedQuery struct {
	Source string `json:"source" default:"all" validate:"oneof=all news twitter reddit youtube"`
}

// FeedResponse is the filtered feed
type FeedResponse struct {
	Items     []contracts.FeedItem `json:"items"`
	Counts    feed.Counts          `json:"counts"`
	FetchedAt time.Time            `json:"fetched_at"`
	Stale     bool                 `json:"stale"`
}

// Get returns the latest batch filtered by source
// GET /api/feed?source=twitter
func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := FeedQuery{Source: r.URL.Query().Get("source")}
	if !applyAndValidate(w, &q) {
		return
	}

	batch := h.svc.Latest()
	items, err := batch.Filter(q.Source)
	if err != nil {
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, FeedResponse{
		Items:     items,
		Counts:    batch.Counts,
		FetchedAt: batch.FetchedAt,
		Stale:     batch.Stale,
	})
}
