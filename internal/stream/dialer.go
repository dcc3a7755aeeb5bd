package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// Conn is the subset of *websocket.Conn the client uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens a stream connection
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with gorilla/websocket
type WSDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// DefaultHandshakeTimeout bounds the opening handshake
const DefaultHandshakeTimeout = 10 * time.Second

// Dial opens a websocket connection; failures wrap ErrConnection
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w: %v", url, resp.StatusCode, contracts.ErrConnection, err)
		}
		return nil, fmt.Errorf("dial %s: %w: %v", url, contracts.ErrConnection, err)
	}
	return conn, nil
}
