package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/recommend"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// ChatHandler handles chat endpoints
type ChatHandler struct {
	sessions *recommend.Sessions
	builder  *recommend.Builder
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(sessions *recommend.Sessions, builder *recommend.Builder, log *logger.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, builder: builder, logger: log}
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	ConversationID string   `json:"conversation_id" validate:"omitempty,max=64"`
	Query          string   `json:"query" validate:"required,max=2000"`
	WatchlistID    string   `json:"watchlist_id" validate:"omitempty,max=64"`
	Tickers        []string `json:"tickers" validate:"max=6,dive,required,max=32"`
	WebSearch      bool     `json:"web_search"`
}

// ChatResponse carries the envelope and the conversation id to reuse
type ChatResponse struct {
	ConversationID string                            `json:"conversation_id"`
	Envelope       *contracts.RecommendationEnvelope `json:"envelope"`
}

// Post asks one question within a conversation
// POST /api/chat
func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	conv := h.sessions.Get(req.ConversationID)
	env, err := conv.Ask(r.Context(), recommend.Request{
		Query:       req.Query,
		WatchlistID: req.WatchlistID,
		Tickers:     req.Tickers,
		WebSearch:   req.WebSearch,
	})
	if err != nil {
		h.logger.WithError(err).WithField("conversation_id", conv.ID()).Warn("Chat request failed")
		respondErr(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{ConversationID: conv.ID(), Envelope: env})
}

// Messages returns a conversation transcript
// GET /api/chat/conversations/{id}
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conv, ok := h.sessions.Lookup(id)
	if !ok {
		respondErr(w, fmt.Errorf("conversation %s: %w", id, contracts.ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conv.ID(),
		"busy":            conv.Busy(),
		"messages":        conv.Messages(),
	})
}

// Envelope returns a cached envelope by chat id
// GET /api/chat/{chat_id}
func (h *ChatHandler) Envelope(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chat_id"]
	env, found, err := h.builder.Lookup(r.Context(), chatID)
	if err != nil {
		h.logger.WithError(err).Warn("Envelope lookup failed")
		respondErr(w, err)
		return
	}
	if !found {
		respondErr(w, fmt.Errorf("envelope %s: %w", chatID, contracts.ErrNotFound))
		return
	}
	respondJSON(w, http.StatusOK, env)
}
