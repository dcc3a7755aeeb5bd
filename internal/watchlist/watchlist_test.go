package watchlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

type failingStore struct {
	*MemoryStore
	err error
}

func (f *failingStore) Add(context.Context, string, string) ([]string, error)    { return nil, f.err }
func (f *failingStore) Remove(context.Context, string, string) ([]string, error) { return nil, f.err }

func seeded(t *testing.T, symbols ...string) *Watchlist {
	t.Helper()
	w := New("demo", NewMemoryStore(map[string][]string{"demo": symbols}), nil)
	_, err := w.Sync(context.Background())
	require.NoError(t, err)
	return w
}

func TestAddAndRemove(t *testing.T) {
	ctx := context.Background()
	w := New("demo", nil, nil)

	snap, err := w.Add(ctx, " reliance.ns ")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS"}, snap.Symbols())
	assert.Equal(t, int64(1), snap.Version)

	snap, err = w.Add(ctx, "TCS.NS")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS"}, snap.Symbols())

	snap, err = w.Remove(ctx, "reliance.ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS.NS"}, snap.Symbols())
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, snap.Symbols(), w.Snapshot().Symbols())
}

func TestCapacity(t *testing.T) {
	w := seeded(t, "A.NS", "B.NS", "C.NS", "D.NS", "E.NS", "F.NS")
	before := w.Snapshot()
	require.Equal(t, contracts.MaxWatchlistSize, before.Len())

	snap, err := w.Add(context.Background(), "G.NS")
	assert.ErrorIs(t, err, contracts.ErrCapacityExceeded)
	assert.Equal(t, before.Symbols(), snap.Symbols())
	assert.Equal(t, before.Version, w.Snapshot().Version)
}

func TestDuplicate(t *testing.T) {
	w := seeded(t, "A.NS")
	_, err := w.Add(context.Background(), "a.ns")
	assert.ErrorIs(t, err, contracts.ErrDuplicateTicker)
	assert.Equal(t, 1, w.Snapshot().Len())
}

func TestRemoveNotFound(t *testing.T) {
	w := seeded(t, "A.NS")
	before := w.Snapshot()

	_, err := w.Remove(context.Background(), "Z.NS")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.Equal(t, before, w.Snapshot())
}

func TestAddEmptySymbol(t *testing.T) {
	w := New("demo", nil, nil)
	_, err := w.Add(context.Background(), "   ")
	assert.ErrorIs(t, err, contracts.ErrOutOfRange)
}

func TestStoreFailureLeavesSnapshotUnchanged(t *testing.T) {
	boom := errors.New("producer unavailable")
	store := &failingStore{MemoryStore: NewMemoryStore(map[string][]string{"demo": {"A.NS"}}), err: boom}
	w := New("demo", store, nil)
	_, err := w.Sync(context.Background())
	require.NoError(t, err)
	before := w.Snapshot()

	snap, err := w.Add(context.Background(), "B.NS")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, w.Snapshot())

	_, err = w.Remove(context.Background(), "A.NS")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, w.Snapshot())
}

func TestScope(t *testing.T) {
	w := seeded(t, "RELIANCE.NS", "TCS.NS", "HDFC.NS")

	all, err := w.Scope(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS", "HDFC.NS"}, all)

	some, err := w.Scope([]string{"tcs.ns", "TCS.NS", "HDFC.NS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS.NS", "HDFC.NS"}, some)

	_, err = w.Scope([]string{"TCS.NS", "INFY.NS"})
	assert.ErrorIs(t, err, contracts.ErrOutOfScope)
}

func TestSyncTruncatesOversizedStore(t *testing.T) {
	w := seeded(t, "A", "B", "C", "D", "E", "F", "G", "A")
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, w.Snapshot().Symbols())
}

func TestConcurrentAddsRespectCapacity(t *testing.T) {
	w := New("demo", nil, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, full int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.Add(context.Background(), fmt.Sprintf("T%d.NS", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, contracts.ErrCapacityExceeded):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, contracts.MaxWatchlistSize, ok)
	assert.Equal(t, 20-contracts.MaxWatchlistSize, full)
	assert.Equal(t, contracts.MaxWatchlistSize, w.Snapshot().Len())
}

func TestOnChange(t *testing.T) {
	w := New("demo", nil, nil)
	var got []int64
	w.OnChange(func(s contracts.WatchlistSnapshot) { got = append(got, s.Version) })

	_, _ = w.Add(context.Background(), "A")
	_, _ = w.Add(context.Background(), "A")
	_, _ = w.Remove(context.Background(), "A")

	assert.Equal(t, []int64{1, 2}, got)
}

func TestOnChangeRunsWithoutMutationLock(t *testing.T) {
	w := New("demo", nil, nil)
	var free []bool
	w.OnChange(func(s contracts.WatchlistSnapshot) {
		ok := w.mu.TryLock()
		if ok {
			w.mu.Unlock()
		}
		free = append(free, ok)
	})

	_, err := w.Add(context.Background(), "A")
	require.NoError(t, err)
	_, err = w.Sync(context.Background())
	require.NoError(t, err)
	_, err = w.Remove(context.Background(), "A")
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, true}, free)
}

func TestOnChangeListenerMayMutate(t *testing.T) {
	w := New("demo", nil, nil)
	w.OnChange(func(s contracts.WatchlistSnapshot) {
		if s.Contains("A") && !s.Contains("B") {
			_, _ = w.Add(context.Background(), "B")
		}
	})

	_, err := w.Add(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, w.Snapshot().Symbols())
}

func TestSnapshotIsACopy(t *testing.T) {
	w := seeded(t, "A")
	s := w.Snapshot()
	s.Tickers[0].Symbol = "MUTATED"
	assert.Equal(t, "A", w.Snapshot().Tickers[0].Symbol)
}

func TestSyncJobPicksUpRemoteChanges(t *testing.T) {
	store := NewMemoryStore(map[string][]string{"demo": {"A.NS"}})
	w := New("demo", store, nil)

	var seen []string
	w.OnChange(func(s contracts.WatchlistSnapshot) { seen = s.Symbols() })

	job := NewSyncJob(w, 0)
	assert.Equal(t, "watchlist-sync", job.Name())
	assert.Equal(t, "@every 5m0s", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"A.NS"}, w.Snapshot().Symbols())

	_, err := store.Add(context.Background(), "demo", "B.NS")
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"A.NS", "B.NS"}, seen)
}
