package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/marketlens/backend/internal/api/handlers"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/pkg/logger"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

// Handlers groups the route handlers mounted by NewRouter
type Handlers struct {
	Watchlist *handlers.WatchlistHandler
	Signals   *handlers.SignalsHandler
	Feed      *handlers.FeedHandler
	Chat      *handlers.ChatHandler
	Stream    *handlers.StreamHandler
}

// RouterConfig holds the cross-cutting router settings
type RouterConfig struct {
	Limiter        *redis.RateLimiter // nil disables API rate limiting
	RateLimit      int
	RateWindow     time.Duration
	MetricsEnabled bool
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: every route is registered here
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	// Browser fan-out
	r.HandleFunc("/ws/signals", h.Stream.Signals).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Watchlist endpoints
	api.HandleFunc("/watchlist", h.Watchlist.Get).Methods("GET")
	api.HandleFunc("/watchlist/add", h.Watchlist.Add).Methods("POST")
	api.HandleFunc("/watchlist/remove", h.Watchlist.Remove).Methods("POST")

	// Signal endpoints
	api.HandleFunc("/signals", h.Signals.List).Methods("GET")
	api.HandleFunc("/signals/{ticker}/explain", h.Signals.Explain).Methods("GET")
	api.HandleFunc("/insights", h.Signals.Insights).Methods("GET")

	// Feed endpoints
	api.HandleFunc("/feed", h.Feed.Get).Methods("GET")

	// Chat endpoints
	api.HandleFunc("/chat", h.Chat.Post).Methods("POST")
	api.HandleFunc("/chat/conversations/{id}", h.Chat.Messages).Methods("GET")
	api.HandleFunc("/chat/{chat_id}", h.Chat.Envelope).Methods("GET")

	// Stream health
	api.HandleFunc("/stream/status", h.Stream.Status).Methods("GET")

	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		api.Use(rateLimitMiddleware(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, log))
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "marketlens-api",
	})
}

var errHijackUnsupported = errors.New("response writer does not support hijacking")

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is required by the websocket upgrader
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errHijackUnsupported
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests and records request metrics
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			route := routeTemplate(r)
			metrics.HTTPRequest(route, r.Method, rec.status, duration)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"route":    route,
				"status":   rec.status,
				"duration": duration,
			}).Debug("HTTP request")
		})
	}
}

// routeTemplate keeps metric label cardinality bounded
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware enforces the per-client sliding window.
// Limiter failures let the request through.
func rateLimitMiddleware(limiter *redis.RateLimiter, limit int, window time.Duration, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, err := limiter.Allow(r.Context(), redis.APIRateLimit(clientIP(r), limit, window))
			if err != nil {
				log.WithError(err).Warn("Rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success":   false,
					"error":     "Too many requests",
					"retryable": true,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
