// Package metrics holds the Prometheus collectors. Collectors are usable
// before Register; registration only exposes them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	streamState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketlens_stream_state",
			Help: "Current connection state per stream (0 disconnected, 1 connecting, 2 open, 3 error, 4 closed)",
		},
		[]string{"stream"},
	)

	streamTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_stream_transitions_total",
			Help: "Connection state transitions per stream",
		},
		[]string{"stream", "to"},
	)

	signalsMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_signals_merged_total",
			Help: "Signal records applied to the board",
		},
		[]string{"type"},
	)

	feedPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_feed_polls_total",
			Help: "Feed poll outcomes (ok, cached, error)",
		},
		[]string{"result"},
	)

	envelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_envelopes_total",
			Help: "Recommendation envelopes built (ok, failed)",
		},
		[]string{"result"},
	)

	alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_alerts_total",
			Help: "Webhook alert outcomes (sent, duplicate, error)",
		},
		[]string{"result"},
	)

	archiveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketlens_archive_writes_total",
			Help: "Signal archive batch writes (ok, error)",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	regOnce sync.Once
)

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	regOnce.Do(func() {
		prometheus.MustRegister(
			streamState, streamTransitions, signalsMerged, feedPolls,
			envelopes, alerts, archiveWrites, httpRequests, httpDuration,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// StreamState records a stream state change
func StreamState(stream, state string, code int) {
	streamState.WithLabelValues(stream).Set(float64(code))
	streamTransitions.WithLabelValues(stream, state).Inc()
}

// SignalMerged counts one applied signal record
func SignalMerged(signalType string) {
	signalsMerged.WithLabelValues(signalType).Inc()
}

// FeedPoll counts a feed poll outcome
func FeedPoll(result string) {
	feedPolls.WithLabelValues(result).Inc()
}

// Envelope counts an envelope build outcome
func Envelope(ok bool) {
	if ok {
		envelopes.WithLabelValues("ok").Inc()
		return
	}
	envelopes.WithLabelValues("failed").Inc()
}

// Alert counts a webhook alert outcome
func Alert(result string) {
	alerts.WithLabelValues(result).Inc()
}

// ArchiveWrite counts an archive write outcome
func ArchiveWrite(ok bool) {
	if ok {
		archiveWrites.WithLabelValues("ok").Inc()
		return
	}
	archiveWrites.WithLabelValues("error").Inc()
}

// HTTPRequest records one served request. route should be the route template.
func HTTPRequest(route, method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
