package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/scheduler"
	"github.com/wonny/marketlens/backend/internal/stream"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusSource exposes one upstream stream's reconnect indicator
type StatusSource interface {
	Status() stream.Status
}

// StreamHandler fans merged signals out to browser websockets and reports
// upstream health
type StreamHandler struct {
	board   *stream.SignalBoard
	clients []StatusSource
	breaker func() string
	sched   *scheduler.Scheduler
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler. breaker and sched may be nil.
func NewStreamHandler(board *stream.SignalBoard, clients []StatusSource, breaker func() string, sched *scheduler.Scheduler, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		board:   board,
		clients: clients,
		breaker: breaker,
		sched:   sched,
		logger:  log.WithComponent("ws"),
	}
}

type signalsMessage struct {
	Type    string               `json:"type"`
	Version int64                `json:"version"`
	Signals []contracts.Signal   `json:"signals"`
	History map[string][]float64 `json:"history"`
}

func newSignalsMessage(s stream.SignalSnapshot) signalsMessage {
	return signalsMessage{Type: "signals", Version: s.Version, Signals: s.Signals, History: s.History}
}

// Signals upgrades to a websocket and pushes every snapshot
// GET /ws/signals
func (h *StreamHandler) Signals(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.board.Subscribe()
	defer unsubscribe()

	h.logger.WithField("remote", r.RemoteAddr).Debug("WebSocket client connected")

	// Reader only services control frames and notices the close
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := h.write(conn, newSignalsMessage(h.board.Snapshot())); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			h.logger.WithField("remote", r.RemoteAddr).Debug("WebSocket client disconnected")
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, newSignalsMessage(snap)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, msg signalsMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.WithError(err).Debug("WebSocket write failed")
		return err
	}
	return nil
}

// StatusResponse is the upstream health view
type StatusResponse struct {
	Streams []stream.Status               `json:"streams"`
	Breaker string                        `json:"producer_breaker,omitempty"`
	Jobs    map[string]scheduler.JobStats `json:"jobs,omitempty"`
}

// Status reports stream, breaker and job health
// GET /api/stream/status
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Streams: make([]stream.Status, 0, len(h.clients))}
	for _, c := range h.clients {
		resp.Streams = append(resp.Streams, c.Status())
	}
	if h.breaker != nil {
		resp.Breaker = h.breaker()
	}
	if h.sched != nil {
		resp.Jobs = h.sched.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}
