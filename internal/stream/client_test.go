package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

type transitions struct {
	mu  sync.Mutex
	seq []State
}

func (r *transitions) record(_ string, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = append(r.seq, to)
}

func (r *transitions) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.seq...)
}

func (r *transitions) count(s State) int {
	n := 0
	for _, x := range r.get() {
		if x == s {
			n++
		}
	}
	return n
}

// wsServer upgrades every request and hands the connection to serve
func wsServer(t *testing.T, serve func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastConfig(url string, rec *transitions) ClientConfig {
	return ClientConfig{
		Name:          "signals",
		URL:           url,
		BackoffBase:   10 * time.Millisecond,
		BackoffMax:    50 * time.Millisecond,
		ReadTimeout:   2 * time.Second,
		OnStateChange: rec.record,
	}
}

func TestRunWithoutEndpoint(t *testing.T) {
	c := NewClient(ClientConfig{Name: "signals"}, func(context.Context, []byte) error { return nil }, nil)
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoEndpoint)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientDeliversToBoard(t *testing.T) {
	_, url := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"id":"1","ticker":"TCS.NS","type":"bullish","score":0.68,"confidence":0.8,"action":"long","timestamp":"2025-03-01T09:15:00Z","evidenceCount":2}]`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	rec := &transitions{}
	board := NewSignalBoard(BoardConfig{}, nil)
	c := NewClient(fastConfig(url, rec), board.Handle, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, ok := board.Snapshot().Get("TCS.NS")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateOpen, c.State())
	seq := rec.get()
	require.GreaterOrEqual(t, len(seq), 2)
	assert.Equal(t, []State{StateConnecting, StateOpen}, seq[:2])

	st := c.Status()
	assert.Equal(t, "open", st.State)
	assert.Equal(t, int64(2), st.Messages)
	assert.Equal(t, int64(1), st.Dropped, "malformed message dropped, stream kept running")

	c.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestForcedCloseSchedulesReconnect(t *testing.T) {
	var accepted atomic.Int32
	_, url := wsServer(t, func(conn *websocket.Conn) {
		accepted.Add(1)
		// close immediately without a close frame
		_ = conn.Close()
	})

	rec := &transitions{}
	c := NewClient(fastConfig(url, rec), func(context.Context, []byte) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return accepted.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, rec.count(StateOpen), 2)
	assert.GreaterOrEqual(t, rec.count(StateError), 1)
	assert.GreaterOrEqual(t, c.Status().Reconnects, int64(1))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPeerCloseFrameReconnects(t *testing.T) {
	var accepted atomic.Int32
	_, url := wsServer(t, func(conn *websocket.Conn) {
		accepted.Add(1)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_ = conn.Close()
	})

	rec := &transitions{}
	c := NewClient(fastConfig(url, rec), func(context.Context, []byte) error { return nil }, nil)
	go func() { _ = c.Run(context.Background()) }()
	defer c.Stop()

	require.Eventually(t, func() bool { return accepted.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, rec.count(StateClosed), 1)
}

type failingDialer struct{ calls atomic.Int32 }

func (d *failingDialer) Dial(context.Context, string) (Conn, error) {
	d.calls.Add(1)
	return nil, contracts.ErrConnection
}

func TestDialFailuresRetryForever(t *testing.T) {
	rec := &transitions{}
	dialer := &failingDialer{}
	cfg := fastConfig("ws://unused", rec)
	cfg.Dialer = dialer
	c := NewClient(cfg, func(context.Context, []byte) error { return nil }, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return dialer.calls.Load() >= 5 }, 3*time.Second, 5*time.Millisecond)
	seq := rec.get()
	assert.Equal(t, []State{StateConnecting, StateError, StateConnecting}, seq[:3])
	assert.NotEmpty(t, c.Status().LastError)

	c.Stop()
	require.NoError(t, <-done)

	calls := dialer.calls.Load()
	n := len(rec.get())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, calls, dialer.calls.Load(), "no dials after Stop")
	assert.Equal(t, n, len(rec.get()), "no transitions after Stop")
	assert.Equal(t, StateClosed, c.State())
}

func TestStopIsIdempotent(t *testing.T) {
	c := NewClient(ClientConfig{Name: "insights"}, func(context.Context, []byte) error { return nil }, nil)
	c.Stop()
	c.Stop()
	assert.Equal(t, StateClosed, c.State())
}

func TestWSDialerWrapsConnectionError(t *testing.T) {
	_, err := WSDialer{HandshakeTimeout: time.Second}.Dial(context.Background(), "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConnection))
}
