// Package inprocess runs ingestion jobs on background goroutines of the
// current process.
package inprocess

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
	"golang.org/x/sync/semaphore"
)

type Processor interface {
	Process(ctx context.Context, job domain.IngestionJob) error
}

// FailureRecorder is implemented by processors that can record a job that
// never ran, e.g. one dropped at shutdown.
type FailureRecorder interface {
	MarkFailed(ctx context.Context, documentID int64, reason error) error
}

// Observer is notified around every job, e.g. to export metrics.
type Observer interface {
	IngestionStarted()
	IngestionFinished(elapsed time.Duration, err error)
}

type Options struct {
	Workers  int
	Timeout  time.Duration
	Observer Observer
}

// Dispatcher implements fire-and-forget ingestion with at most Workers jobs
// running at once and at most one job per document.
type Dispatcher struct {
	processor Processor
	sem       *semaphore.Weighted
	timeout   time.Duration
	observer  Observer

	stopCtx context.Context
	stop    context.CancelFunc

	mu       sync.Mutex
	inFlight map[int64]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func New(processor Processor, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		processor: processor,
		sem:       semaphore.NewWeighted(int64(workers)),
		timeout:   timeout,
		observer:  opts.Observer,
		stopCtx:   stopCtx,
		stop:      stop,
		inFlight:  make(map[int64]struct{}),
	}
}

// BeginIngestion schedules the job and returns immediately. The job keeps
// the values of ctx but not its cancellation.
func (d *Dispatcher) BeginIngestion(ctx context.Context, job domain.IngestionJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("%w: ingestion dispatcher is shut down", domain.ErrTemporary)
	}
	if _, busy := d.inFlight[job.DocumentID]; busy {
		return fmt.Errorf("%w: document %d is already being ingested", domain.ErrConflict, job.DocumentID)
	}
	d.inFlight[job.DocumentID] = struct{}{}
	d.wg.Add(1)

	go d.run(context.WithoutCancel(ctx), job)
	return nil
}

func (d *Dispatcher) run(parent context.Context, job domain.IngestionJob) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, job.DocumentID)
		d.mu.Unlock()
	}()

	if err := d.sem.Acquire(d.stopCtx, 1); err != nil {
		slog.Warn("ingestion_dropped", "document_id", job.DocumentID, "error", err)
		d.recordDropped(parent, job.DocumentID)
		return
	}
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	stopLink := context.AfterFunc(d.stopCtx, cancel)
	defer stopLink()

	if d.observer != nil {
		d.observer.IngestionStarted()
	}
	started := time.Now()
	err := d.processor.Process(ctx, job)
	if d.observer != nil {
		d.observer.IngestionFinished(time.Since(started), err)
	}

	if err != nil {
		slog.Error("ingestion_failed", "document_id", job.DocumentID, "error", err)
		return
	}
	slog.Info("ingestion_completed", "document_id", job.DocumentID, "duration_ms", time.Since(started).Milliseconds())
}

func (d *Dispatcher) recordDropped(ctx context.Context, documentID int64) {
	recorder, ok := d.processor.(FailureRecorder)
	if !ok {
		return
	}
	reason := fmt.Errorf("%w: ingestion cancelled at shutdown before processing started", domain.ErrTemporary)
	if err := recorder.MarkFailed(ctx, documentID, reason); err != nil {
		slog.Error("ingestion_mark_failed_error", "document_id", documentID, "error", err)
	}
}

// Wait blocks until every scheduled job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled, queued jobs are recorded as failed when
// the processor is a FailureRecorder, and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		<-done
		return ctx.Err()
	}
}
