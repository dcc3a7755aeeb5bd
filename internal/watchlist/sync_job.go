package watchlist

import (
	"context"
	"fmt"
	"time"
)

// DefaultSyncInterval is how often the local copy is reconciled with the store
const DefaultSyncInterval = 5 * time.Minute

// SyncJob re-reads the watchlist from its store. It implements scheduler.Job.
type SyncJob struct {
	wl       *Watchlist
	interval time.Duration
}

// NewSyncJob creates the periodic watchlist reconcile
func NewSyncJob(wl *Watchlist, interval time.Duration) *SyncJob {
	if interval < time.Second {
		interval = DefaultSyncInterval
	}
	return &SyncJob{wl: wl, interval: interval}
}

func (j *SyncJob) Name() string { return "watchlist-sync" }

func (j *SyncJob) Schedule() string { return fmt.Sprintf("@every %s", j.interval) }

func (j *SyncJob) Run(ctx context.Context) error {
	_, err := j.wl.Sync(ctx)
	return err
}
