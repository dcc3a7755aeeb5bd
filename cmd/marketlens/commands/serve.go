package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/backend/internal/alert"
	"github.com/wonny/marketlens/backend/internal/api"
	"github.com/wonny/marketlens/backend/internal/api/handlers"
	"github.com/wonny/marketlens/backend/internal/archive"
	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/feed"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/internal/recommend"
	"github.com/wonny/marketlens/backend/internal/scheduler"
	"github.com/wonny/marketlens/backend/internal/stream"
	"github.com/wonny/marketlens/backend/internal/watchlist"
	"github.com/wonny/marketlens/backend/pkg/database"
	"github.com/wonny/marketlens/backend/pkg/httputil"
	"github.com/wonny/marketlens/backend/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Start the dashboard backend.

This command:
- Syncs the watchlist and scopes the signal board to it
- Connects the signals and insights push streams
- Polls the multi-source feed every 20s
- Serves the dashboard API and the browser signal websocket
- Optionally archives merged signals and posts webhook alerts

Endpoints:
  GET  /health                      - Health check
  GET  /metrics                     - Prometheus metrics
  GET  /api/watchlist               - Current watchlist
  POST /api/watchlist/add|remove    - Mutate the watchlist
  GET  /api/signals                 - Merged live signals
  GET  /api/signals/{ticker}/explain - Explain one signal
  GET  /api/insights                - Latest market insight
  GET  /api/feed?source=            - Live feed
  POST /api/chat                    - Ask for recommendations
  GET  /api/stream/status           - Stream reconnect indicator
  GET  /ws/signals                  - Browser signal websocket

Example:
  go run ./cmd/marketlens serve
  go run ./cmd/marketlens serve --port 9000`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (default from PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	cfg, log := c.cfg, c.log
	if servePort != "" {
		cfg.Port = servePort
	}
	if cfg.MetricsEnabled {
		metrics.Register()
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"env":         cfg.Env,
		"policy_hash": c.policyHash,
	}).Info("Initializing MarketLens server")

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// 1. Signal and insight boards
	board := stream.NewSignalBoard(stream.BoardConfig{
		HistoryLen:          cfg.Stream.HistoryLen,
		Rules:               c.rules,
		LowConfidenceCutoff: c.policy.Classifier.LowConfidenceCutoff,
	}, log)
	insights := stream.NewInsightBoard(log)
	board.OnMerge(func(applied []contracts.Signal) {
		for _, s := range applied {
			metrics.SignalMerged(string(s.Type))
		}
	})

	// 2. Watchlist scopes the board
	c.watchlist.OnChange(func(s contracts.WatchlistSnapshot) {
		board.SetScope(s.Symbols())
	})
	if _, err := c.watchlist.Sync(ctx); err != nil {
		log.WithError(err).Warn("Initial watchlist sync failed; signals are unscoped until the next sync")
	}

	// 3. Optional signal archive
	db, err := database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrDisabled):
		log.Info("Signal archive disabled (no DATABASE_URL)")
	case err != nil:
		return fmt.Errorf("connect to database: %w", err)
	default:
		defer db.Close()
		repo := archive.NewRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure archive schema: %w", err)
		}
		archiver := archive.NewArchiver(repo, archive.DefaultQueueSize, log)
		board.OnMerge(archiver.Enqueue)
		spawn(func() { archiver.Run(ctx) })
		log.Info("Signal archive enabled")
	}

	// 4. Push streams
	clients := []*stream.Client{
		newStreamClient(c, "signals", cfg.StreamURL(cfg.Stream.SignalsPath), board.Handle),
		newStreamClient(c, "insights", cfg.StreamURL(cfg.Stream.InsightsPath), insights.Handle),
	}
	statuses := make([]handlers.StatusSource, 0, len(clients))
	for _, sc := range clients {
		statuses = append(statuses, sc)
		spawn(func() {
			if err := sc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("stream", sc.Name()).Error("Stream stopped")
			}
		})
	}

	// 5. Feed poller and watchlist reconcile on the scheduler
	feedSvc := feed.NewService(c.producer, redis.NewCache(c.redis, "marketlens"), feed.Config{
		Limit:    cfg.Feed.Limit,
		CacheTTL: cfg.Feed.CacheTTL,
		Tickers:  func() []string { return c.watchlist.Snapshot().Symbols() },
	}, log)
	sched := scheduler.New(log)
	for _, job := range []scheduler.Job{
		feed.NewPollJob(feedSvc, cfg.Feed.PollInterval),
		watchlist.NewSyncJob(c.watchlist, watchlist.DefaultSyncInterval),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name(), err)
		}
	}
	if _, err := feedSvc.Refresh(ctx); err != nil {
		log.WithError(err).Warn("Initial feed poll failed")
	}
	sched.Start()
	defer sched.Stop()

	// 6. Webhook alerts follow the board
	notifier := alert.NewNotifier(cfg.Alert.WebhookURL, httputil.New(cfg, log).DisableRetry(), cfg.Alert.MinConfidence, log)
	if notifier.Enabled() {
		updates, unsubscribe := board.Subscribe()
		defer unsubscribe()
		spawn(func() { notifier.Run(ctx, updates) })
		log.Info("Webhook alerts enabled")
	}

	// 7. Recommendation builder and chat sessions
	index := recommend.NewIndex()
	builder := c.builder(index)
	sessions := recommend.NewSessions(builder, recommend.DefaultMaxConversations)

	// 8. Router and server
	router := api.NewRouter(api.Handlers{
		Watchlist: handlers.NewWatchlistHandler(c.watchlist, log),
		Signals:   handlers.NewSignalsHandler(board, insights, index, log),
		Feed:      handlers.NewFeedHandler(feedSvc, log),
		Chat:      handlers.NewChatHandler(sessions, builder, log),
		Stream:    handlers.NewStreamHandler(board, statuses, c.producer.BreakerState, sched, log),
	}, api.RouterConfig{
		Limiter:        redis.NewRateLimiter(c.redis, "marketlens"),
		RateLimit:      cfg.APIRateLimit,
		RateWindow:     cfg.APIRateWindow,
		MetricsEnabled: cfg.MetricsEnabled,
	}, log)
	server := api.New(cfg, log, router)

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	serveErr := server.Run(ctx)

	// Stop streams explicitly so no transitions follow shutdown
	stop()
	for _, sc := range clients {
		sc.Stop()
	}
	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	log.Info("Server stopped")
	return nil
}

func newStreamClient(c *core, name, url string, handler stream.Handler) *stream.Client {
	return stream.NewClient(stream.ClientConfig{
		Name:        name,
		URL:         url,
		Dialer:      stream.WSDialer{},
		BackoffBase: c.cfg.Stream.BackoffBase,
		BackoffMax:  c.cfg.Stream.BackoffMax,
		OnStateChange: func(name string, from, to stream.State) {
			metrics.StreamState(name, to.String(), int(to))
		},
	}, handler, c.log)
}
