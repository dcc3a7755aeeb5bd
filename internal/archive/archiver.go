package archive

import (
	"context"
	"time"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/metrics"
	"github.com/wonny/marketlens/backend/pkg/logger"
)

// DefaultQueueSize bounds batches waiting to be written
const DefaultQueueSize = 64

// writeTimeout bounds one batch write
const writeTimeout = 10 * time.Second

// Writer persists signal batches
type Writer interface {
	SaveBatch(ctx context.Context, signals []contracts.Signal) error
}

// Archiver moves merged batches off the stream goroutine into the Writer
type Archiver struct {
	w     Writer
	queue chan []contracts.Signal
	log   *logger.Logger
}

// NewArchiver creates an archiver with a bounded queue
func NewArchiver(w Writer, queueSize int, log *logger.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Archiver{
		w:     w,
		queue: make(chan []contracts.Signal, queueSize),
		log:   log.WithComponent("archive"),
	}
}

// Enqueue hands a batch to the writer without blocking.
// It has the SignalBoard.OnMerge signature; a full queue drops the batch.
func (a *Archiver) Enqueue(applied []contracts.Signal) {
	batch := append([]contracts.Signal(nil), applied...)
	select {
	case a.queue <- batch:
	default:
		metrics.ArchiveWrite(false)
		a.log.WithField("signals", len(batch)).Warn("Archive queue full, dropping batch")
	}
}

// Run writes queued batches until ctx is done, then drains what is queued
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case batch := <-a.queue:
			a.write(ctx, batch)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *Archiver) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	for {
		select {
		case batch := <-a.queue:
			a.write(ctx, batch)
		default:
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, batch []contracts.Signal) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := a.w.SaveBatch(wctx, batch); err != nil {
		metrics.ArchiveWrite(false)
		a.log.WithError(err).WithField("signals", len(batch)).Error("Failed to archive signals")
		return
	}
	metrics.ArchiveWrite(true)
}
