// Package watchlist maintains the bounded set of tickers that scopes every
// request and stream.
//
// Mutations are single-writer and commit to the backing Store before the
// local snapshot is swapped, so readers only ever observe committed state.
package watchlist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// Watchlist is the in-process view of one watchlist
type Watchlist struct {
	id    string
	store Store
	log   *logger.Logger

	mu        sync.Mutex // serializes mutations
	snap      atomic.Pointer[contracts.WatchlistSnapshot]
	listeners []func(contracts.WatchlistSnapshot)
	notified  atomic.Int64 // highest version delivered to listeners
	now       func() time.Time
}

// New creates an empty watchlist backed by store
func New(id string, store Store, log *logger.Logger) *Watchlist {
	if store == nil {
		store = NewMemoryStore(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	w := &Watchlist{
		id:    id,
		store: store,
		log:   log.WithComponent("watchlist").WithField("watchlist_id", id),
		now:   time.Now,
	}
	w.snap.Store(&contracts.WatchlistSnapshot{ID: id, Tickers: []contracts.Ticker{}, UpdatedAt: w.now()})
	return w
}

// ID returns the watchlist id
func (w *Watchlist) ID() string {
	return w.id
}

// Snapshot returns a copy of the last committed snapshot without locking
func (w *Watchlist) Snapshot() contracts.WatchlistSnapshot {
	s := *w.snap.Load()
	s.Tickers = append([]contracts.Ticker(nil), s.Tickers...)
	return s
}

// OnChange registers fn to run after every committed change.
// Listeners run on the writer's goroutine after the mutation lock is
// released and must not block. Racing mutations may coalesce into one
// delivery of the newest snapshot.
func (w *Watchlist) OnChange(fn func(contracts.WatchlistSnapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Sync replaces the local snapshot with the store's copy
func (w *Watchlist) Sync(ctx context.Context) (contracts.WatchlistSnapshot, error) {
	next, fns, err := w.sync(ctx)
	w.notify(fns)
	return next, err
}

func (w *Watchlist) sync(ctx context.Context) (contracts.WatchlistSnapshot, []func(contracts.WatchlistSnapshot), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.Snapshot()
	symbols, err := w.store.List(ctx, w.id)
	if err != nil {
		return cur, nil, fmt.Errorf("sync watchlist %s: %w", w.id, err)
	}
	return w.publish(cur, symbols), w.subscribers(), nil
}

// Add appends symbol. It fails with ErrCapacityExceeded when full and
// ErrDuplicateTicker when already present; on failure the unchanged
// snapshot is returned.
func (w *Watchlist) Add(ctx context.Context, symbol string) (contracts.WatchlistSnapshot, error) {
	next, fns, err := w.add(ctx, symbol)
	w.notify(fns)
	return next, err
}

func (w *Watchlist) add(ctx context.Context, symbol string) (contracts.WatchlistSnapshot, []func(contracts.WatchlistSnapshot), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.Snapshot()
	symbol = contracts.NormalizeSymbol(symbol)
	if symbol == "" {
		return cur, nil, fmt.Errorf("empty symbol: %w", contracts.ErrOutOfRange)
	}
	if cur.Contains(symbol) {
		return cur, nil, fmt.Errorf("%s: %w", symbol, contracts.ErrDuplicateTicker)
	}
	if cur.Len() >= contracts.MaxWatchlistSize {
		return cur, nil, fmt.Errorf("%s: %w (max %d)", symbol, contracts.ErrCapacityExceeded, contracts.MaxWatchlistSize)
	}

	symbols, err := w.store.Add(ctx, w.id, symbol)
	if err != nil {
		return cur, nil, fmt.Errorf("add %s: %w", symbol, err)
	}

	next := w.publish(cur, symbols)
	w.log.WithField("symbol", symbol).Info("Ticker added")
	return next, w.subscribers(), nil
}

// Remove deletes symbol. It fails with ErrNotFound when absent.
func (w *Watchlist) Remove(ctx context.Context, symbol string) (contracts.WatchlistSnapshot, error) {
	next, fns, err := w.remove(ctx, symbol)
	w.notify(fns)
	return next, err
}

func (w *Watchlist) remove(ctx context.Context, symbol string) (contracts.WatchlistSnapshot, []func(contracts.WatchlistSnapshot), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.Snapshot()
	symbol = contracts.NormalizeSymbol(symbol)
	if !cur.Contains(symbol) {
		return cur, nil, fmt.Errorf("%s: %w", symbol, contracts.ErrNotFound)
	}

	symbols, err := w.store.Remove(ctx, w.id, symbol)
	if err != nil {
		return cur, nil, fmt.Errorf("remove %s: %w", symbol, err)
	}

	next := w.publish(cur, symbols)
	w.log.WithField("symbol", symbol).Info("Ticker removed")
	return next, w.subscribers(), nil
}

// Scope validates a request scope against the current snapshot.
// Empty input scopes to the whole watchlist; any non-member fails with
// ErrOutOfScope before anything is sent.
func (w *Watchlist) Scope(symbols []string) ([]string, error) {
	snap := w.Snapshot()
	if len(symbols) == 0 {
		return snap.Symbols(), nil
	}

	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = contracts.NormalizeSymbol(s)
		if seen[s] {
			continue
		}
		if !snap.Contains(s) {
			return nil, fmt.Errorf("%s: %w", s, contracts.ErrOutOfScope)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// publish builds and swaps the next snapshot from the store's list.
// Caller holds w.mu.
func (w *Watchlist) publish(cur contracts.WatchlistSnapshot, symbols []string) contracts.WatchlistSnapshot {
	known := make(map[string]contracts.Ticker, cur.Len())
	for _, t := range cur.Tickers {
		known[t.Symbol] = t
	}

	tickers := make([]contracts.Ticker, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = contracts.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		if len(tickers) == contracts.MaxWatchlistSize {
			w.log.WithField("symbol", s).Warn("Store returned more tickers than capacity; truncating")
			break
		}
		seen[s] = true
		t, ok := known[s]
		if !ok {
			t = contracts.Ticker{Symbol: s}
		}
		tickers = append(tickers, t)
	}

	next := &contracts.WatchlistSnapshot{
		ID:        w.id,
		Tickers:   tickers,
		Version:   cur.Version + 1,
		UpdatedAt: w.now(),
	}
	w.snap.Store(next)
	return *next
}

// subscribers copies the listener list. Caller holds w.mu.
func (w *Watchlist) subscribers() []func(contracts.WatchlistSnapshot) {
	return append(([]func(contracts.WatchlistSnapshot))(nil), w.listeners...)
}

// notify delivers the newest committed snapshot to fns without holding w.mu.
// A version that was already delivered is skipped.
func (w *Watchlist) notify(fns []func(contracts.WatchlistSnapshot)) {
	if len(fns) == 0 {
		return
	}
	snap := w.Snapshot()
	for {
		last := w.notified.Load()
		if snap.Version <= last {
			return
		}
		if w.notified.CompareAndSwap(last, snap.Version) {
			break
		}
	}
	for _, fn := range fns {
		fn(snap)
	}
}
