// Package alert posts high-confidence signals to a webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/internal/stream"
	"github.com/wonny/marketlens/backend/pkg/httputil"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// DefaultMinConfidence is the alerting threshold
const DefaultMinConfidence = 0.7

// PayloadType tags webhook bodies
const PayloadType = "signals_alert"

// Payload is the webhook body
type Payload struct {
	Type    string             `json:"type"`
	Signals []contracts.Signal `json:"signals"`
}

// Notifier sends alerts, skipping a payload identical to the last one sent
type Notifier struct {
	url     string
	http    *httputil.Client
	minConf float64
	log     *logger.Logger

	mu   sync.Mutex
	last []byte
}

// NewNotifier creates a notifier. An empty url disables it.
func NewNotifier(url string, hc *httputil.Client, minConf float64, log *logger.Logger) *Notifier {
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{
		url:     url,
		http:    hc,
		minConf: minConf,
		log:     log.WithComponent("alert"),
	}
}

// Enabled reports whether a webhook is configured
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Select returns the signals at or above the threshold
func (n *Notifier) Select(signals []contracts.Signal) []contracts.Signal {
	out := make([]contracts.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Confidence >= n.minConf {
			out = append(out, s)
		}
	}
	return out
}

// Notify posts the high-confidence subset of signals.
// sent is false when nothing qualifies or the payload repeats the last one.
func (n *Notifier) Notify(ctx context.Context, signals []contracts.Signal) (sent bool, err error) {
	if !n.Enabled() {
		return false, nil
	}

	high := n.Select(signals)
	if len(high) == 0 {
		return false, nil
	}

	payload := Payload{Type: PayloadType, Signals: high}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal alert: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if bytes.Equal(body, n.last) {
		metrics.Alert("duplicate")
		return false, nil
	}

	if err := n.http.PostJSONInto(ctx, n.url, json.RawMessage(body), nil); err != nil {
		metrics.Alert("error")
		return false, fmt.Errorf("post alert: %w", err)
	}

	n.last = body
	metrics.Alert("sent")
	n.log.WithField("signals", len(high)).Info("Signal alert sent")
	return true, nil
}

// Run alerts on every snapshot until ctx is done
func (n *Notifier) Run(ctx context.Context, updates <-chan stream.SignalSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if _, err := n.Notify(ctx, snap.Signals); err != nil {
				n.log.WithError(err).Warn("Signal alert failed")
			}
		}
	}
}
