package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/evidence"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// DefaultHistoryLen is the number of scores kept per ticker for sparklines
const DefaultHistoryLen = 20

// SignalSnapshot is an immutable view of the merged signals
type SignalSnapshot struct {
	Signals   []contracts.Signal   `json:"signals"` // sorted by ticker
	History   map[string][]float64 `json:"history"`
	Version   int64                `json:"version"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Get returns the signal for ticker
func (s SignalSnapshot) Get(ticker string) (contracts.Signal, bool) {
	ticker = contracts.NormalizeSymbol(ticker)
	i := sort.Search(len(s.Signals), func(i int) bool { return s.Signals[i].Ticker >= ticker })
	if i < len(s.Signals) && s.Signals[i].Ticker == ticker {
		return s.Signals[i], true
	}
	return contracts.Signal{}, false
}

// BoardConfig configures signal normalization on the board
type BoardConfig struct {
	HistoryLen          int
	Rules               *evidence.Rules // nil uses the default allow-list
	LowConfidenceCutoff float64         // zero disables the advisory
}

// SignalBoard merges signal batches into the latest-per-ticker view
type SignalBoard struct {
	cfg    BoardConfig
	logger *logger.Logger

	mu      sync.Mutex
	signals map[string]contracts.Signal
	history map[string][]float64
	scope   map[string]bool // nil: no filter
	version int64
	subs    map[int]chan SignalSnapshot
	nextSub int
	onMerge []func(applied []contracts.Signal)

	snap atomic.Pointer[SignalSnapshot]
}

// NewSignalBoard creates an empty board
func NewSignalBoard(cfg BoardConfig, log *logger.Logger) *SignalBoard {
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = DefaultHistoryLen
	}
	if cfg.Rules == nil {
		cfg.Rules = evidence.DefaultRules()
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &SignalBoard{
		cfg:     cfg,
		logger:  log.WithComponent("signal_board"),
		signals: make(map[string]contracts.Signal),
		history: make(map[string][]float64),
		subs:    make(map[int]chan SignalSnapshot),
	}
	b.snap.Store(&SignalSnapshot{Signals: []contracts.Signal{}, History: map[string][]float64{}})
	return b
}

// Handle decodes and merges one stream message; it satisfies Handler
func (b *SignalBoard) Handle(_ context.Context, payload []byte) error {
	batch, err := decodeSignals(payload)
	if err != nil {
		return err
	}
	b.Merge(batch)
	return nil
}

// Merge applies a decoded batch and returns the records that were applied.
// A record replaces the stored one for its ticker unless it is strictly
// older; records outside the scope are ignored.
func (b *SignalBoard) Merge(batch []contracts.Signal) []contracts.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	applied := make([]contracts.Signal, 0, len(batch))
	for _, sig := range batch {
		sig = b.normalize(sig)
		if b.scope != nil && !b.scope[sig.Ticker] {
			continue
		}
		if cur, ok := b.signals[sig.Ticker]; ok && sig.Timestamp.Before(cur.Timestamp) {
			b.logger.WithFields(map[string]interface{}{
				"ticker":   sig.Ticker,
				"new_time": sig.Timestamp,
				"old_time": cur.Timestamp,
			}).Debug("Rejected older signal")
			continue
		}

		b.signals[sig.Ticker] = sig
		h := append(b.history[sig.Ticker], sig.Score)
		if len(h) > b.cfg.HistoryLen {
			h = h[len(h)-b.cfg.HistoryLen:]
		}
		b.history[sig.Ticker] = h
		applied = append(applied, sig)
	}

	if len(applied) == 0 {
		return applied
	}
	b.publishLocked()
	for _, fn := range b.onMerge {
		fn(applied)
	}
	return applied
}

// SetScope restricts the board to symbols. nil removes the filter; an empty
// non-nil slice filters everything. Records outside the new scope are dropped.
func (b *SignalBoard) SetScope(symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if symbols == nil {
		b.scope = nil
		return
	}
	b.scope = make(map[string]bool, len(symbols))
	for _, s := range symbols {
		b.scope[contracts.NormalizeSymbol(s)] = true
	}

	changed := false
	for t := range b.signals {
		if !b.scope[t] {
			delete(b.signals, t)
			delete(b.history, t)
			changed = true
		}
	}
	if changed {
		b.publishLocked()
	}
}

// Snapshot returns the latest published snapshot
func (b *SignalBoard) Snapshot() SignalSnapshot {
	return *b.snap.Load()
}

// Subscribe returns a channel that always holds the newest snapshot.
// Slow readers skip intermediate versions; publishers never block.
func (b *SignalBoard) Subscribe() (<-chan SignalSnapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan SignalSnapshot, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// OnMerge registers fn to receive every non-empty applied batch.
// Hooks run on the stream goroutine and must not block.
func (b *SignalBoard) OnMerge(fn func(applied []contracts.Signal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMerge = append(b.onMerge, fn)
}

// normalize enforces the verified allow-list and the low-confidence advisory
func (b *SignalBoard) normalize(sig contracts.Signal) contracts.Signal {
	if len(sig.Evidence) > 0 {
		sig.Evidence = b.cfg.Rules.NormalizeAll(sig.Evidence)
		sig.Trust = evidence.Summarize(sig.Evidence)
	}
	if sig.Confidence < b.cfg.LowConfidenceCutoff {
		sig.LowConfidence = true
		sig.Advisory = fmt.Sprintf("Low confidence (%.2f): treat this %s signal as indicative only.", sig.Confidence, sig.Type)
	}
	return sig
}

// publishLocked builds and broadcasts a new snapshot; caller holds b.mu
func (b *SignalBoard) publishLocked() {
	b.version++

	signals := make([]contracts.Signal, 0, len(b.signals))
	for _, s := range b.signals {
		signals = append(signals, s)
	}
	sort.Slice(signals, func(i, j int) bool { return signals[i].Ticker < signals[j].Ticker })

	history := make(map[string][]float64, len(b.history))
	for t, h := range b.history {
		history[t] = append([]float64(nil), h...)
	}

	snap := &SignalSnapshot{
		Signals:   signals,
		History:   history,
		Version:   b.version,
		UpdatedAt: time.Now(),
	}
	b.snap.Store(snap)

	for _, ch := range b.subs {
		offer(ch, *snap)
	}
}

// offer replaces whatever is buffered in ch with v without blocking
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// InsightBoard holds the latest market insight
type InsightBoard struct {
	logger *logger.Logger

	mu      sync.Mutex
	subs    map[int]chan contracts.Insight
	nextSub int

	latest atomic.Pointer[contracts.Insight]
}

// NewInsightBoard creates an empty insight board
func NewInsightBoard(log *logger.Logger) *InsightBoard {
	if log == nil {
		log = logger.Nop()
	}
	return &InsightBoard{
		logger: log.WithComponent("insight_board"),
		subs:   make(map[int]chan contracts.Insight),
	}
}

// Handle decodes one insights message; it satisfies Handler
func (b *InsightBoard) Handle(_ context.Context, payload []byte) error {
	ins, err := decodeInsight(payload)
	if err != nil {
		return err
	}
	b.Set(ins)
	return nil
}

// Set replaces the latest insight wholesale
func (b *InsightBoard) Set(ins contracts.Insight) {
	if ins.ReceivedAt.IsZero() {
		ins.ReceivedAt = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest.Store(&ins)
	for _, ch := range b.subs {
		offer(ch, ins)
	}
}

// Latest returns the most recent insight, if any
func (b *InsightBoard) Latest() (contracts.Insight, bool) {
	p := b.latest.Load()
	if p == nil {
		return contracts.Insight{}, false
	}
	return *p, true
}

// Subscribe returns a channel holding the newest insight
func (b *InsightBoard) Subscribe() (<-chan contracts.Insight, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan contracts.Insight, 1)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
