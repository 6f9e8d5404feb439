package inprocess

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
)

type blockingProcessor struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	mu      sync.Mutex
	seen    []int64
}

func (p *blockingProcessor) Process(ctx context.Context, job domain.IngestionJob) error {
	n := p.running.Add(1)
	defer p.running.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.seen = append(p.seen, job.DocumentID)
	p.mu.Unlock()

	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
	failed   atomic.Int32
}

func (o *countingObserver) IngestionStarted() { o.started.Add(1) }

func (o *countingObserver) IngestionFinished(_ time.Duration, err error) {
	o.finished.Add(1)
	if err != nil {
		o.failed.Add(1)
	}
}

func TestBeginIngestionReturnsImmediatelyAndRejectsDuplicates(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	d := New(proc, Options{Workers: 1, Timeout: time.Minute})

	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 1}); err != nil {
		t.Fatalf("BeginIngestion() error = %v", err)
	}
	err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 1})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for in-flight document, got %v", err)
	}

	close(proc.release)
	d.Wait()

	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 1}); err != nil {
		t.Fatalf("expected document to be schedulable again after completion, got %v", err)
	}
	d.Wait()
}

func TestWorkersBoundConcurrency(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	obs := &countingObserver{}
	d := New(proc, Options{Workers: 2, Timeout: time.Minute, Observer: obs})

	for id := int64(1); id <= 5; id++ {
		if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: id}); err != nil {
			t.Fatalf("BeginIngestion(%d) error = %v", id, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(proc.release)
	d.Wait()

	if peak := proc.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", peak)
	}
	if obs.started.Load() != 5 || obs.finished.Load() != 5 || obs.failed.Load() != 0 {
		t.Fatalf("unexpected observer counts started=%d finished=%d failed=%d", obs.started.Load(), obs.finished.Load(), obs.failed.Load())
	}
}

func TestJobOutlivesCallerContext(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	obs := &countingObserver{}
	d := New(proc, Options{Workers: 1, Timeout: time.Minute, Observer: obs})

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.BeginIngestion(ctx, domain.IngestionJob{DocumentID: 7}); err != nil {
		t.Fatalf("BeginIngestion() error = %v", err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(proc.release)
	d.Wait()

	if obs.failed.Load() != 0 {
		t.Fatalf("job must not be cancelled with the upload request")
	}
}

func TestCloseCancelsRunningJobsOnDeadline(t *testing.T) {
	proc := &blockingProcessor{release: make(chan struct{})}
	obs := &countingObserver{}
	d := New(proc, Options{Workers: 1, Timeout: time.Minute, Observer: obs})

	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 3}); err != nil {
		t.Fatalf("BeginIngestion() error = %v", err)
	}
	for proc.running.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if obs.failed.Load() != 1 {
		t.Fatalf("expected the running job to be cancelled")
	}
	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 4}); !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected closed dispatcher to refuse jobs, got %v", err)
	}
}

type failureRecordingProcessor struct {
	*blockingProcessor
	mu     sync.Mutex
	failed map[int64]error
}

func (p *failureRecordingProcessor) MarkFailed(_ context.Context, documentID int64, reason error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[documentID] = reason
	return nil
}

func TestCloseRecordsQueuedJobsAsFailed(t *testing.T) {
	proc := &failureRecordingProcessor{
		blockingProcessor: &blockingProcessor{release: make(chan struct{})},
		failed:            make(map[int64]error),
	}
	d := New(proc, Options{Workers: 1, Timeout: time.Minute})

	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 1}); err != nil {
		t.Fatalf("BeginIngestion(1) error = %v", err)
	}
	for proc.running.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := d.BeginIngestion(context.Background(), domain.IngestionJob{DocumentID: 2}); err != nil {
		t.Fatalf("BeginIngestion(2) error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	proc.blockingProcessor.mu.Lock()
	seen := append([]int64(nil), proc.seen...)
	proc.blockingProcessor.mu.Unlock()
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("expected only document 1 to reach Process, got %v", seen)
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	reason, ok := proc.failed[2]
	if !ok {
		t.Fatalf("expected queued document 2 to be marked failed, got %v", proc.failed)
	}
	if reason == nil || reason.Error() == "" {
		t.Fatalf("expected a failure reason for document 2")
	}
	if _, ok := proc.failed[1]; ok {
		t.Fatalf("running document 1 is failed by Process itself, not by the dispatcher")
	}
}
