package feed

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval matches the dashboard refresh cadence
const DefaultPollInterval = 20 * time.Second

// PollJob refreshes the feed on a schedule. It implements scheduler.Job.
type PollJob struct {
	svc      *Service
	interval time.Duration
}

// NewPollJob creates the periodic feed poll
func NewPollJob(svc *Service, interval time.Duration) *PollJob {
	if interval < time.Second {
		interval = DefaultPollInterval
	}
	return &PollJob{svc: svc, interval: interval}
}

func (j *PollJob) Name() string { return "feed-poll" }

func (j *PollJob) Schedule() string { return fmt.Sprintf("@every %s", j.interval) }

func (j *PollJob) Run(ctx context.Context) error {
	_, err := j.svc.Refresh(ctx)
	return err
}
