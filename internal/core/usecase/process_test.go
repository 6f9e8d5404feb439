package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/documind/internal/core/domain"
)

type processFixture struct {
	repo      *memoryRepo
	storage   *storageFake
	extractor *extractorFake
	chunker   *chunkerFake
	embedder  *embedderFake
	vectors   *vectorStoreFake
}

func newProcessFixture(status domain.DocumentStatus) *processFixture {
	repo := newMemoryRepo()
	repo.put(domain.Document{ID: 7, ProjectID: 1, Name: "pets.txt", StorageKey: "k_pets.txt", FileType: domain.FileTypeText, Status: status})
	storage := newStorageFake()
	storage.objects["k_pets.txt"] = []byte("Cats are mammals. Dogs are mammals too.")
	return &processFixture{
		repo:      repo,
		storage:   storage,
		extractor: &extractorFake{text: "Cats are mammals. Dogs are mammals too."},
		chunker:   &chunkerFake{chunks: []string{"one", "three", "five5"}},
		embedder:  &embedderFake{dimension: 4},
		vectors:   &vectorStoreFake{},
	}
}

func (f *processFixture) useCase(opts ...ProcessOption) *ProcessDocumentUseCase {
	return NewProcessDocumentUseCase(f.repo, f.storage, f.extractor, f.chunker, f.embedder, f.vectors, opts...)
}

func TestProcessCompletesDocument(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)

	if err := f.useCase().Process(context.Background(), domain.IngestionJob{DocumentID: 7, FileType: domain.FileTypeText}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	doc, _ := f.repo.GetByID(context.Background(), 7)
	if doc.Status != domain.StatusCompleted || doc.ChunkCount != 3 {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(f.vectors.upserted) != 3 {
		t.Fatalf("expected 3 chunks stored, got %d", len(f.vectors.upserted))
	}
	for i, chunk := range f.vectors.upserted {
		if chunk.Index != i || chunk.DocumentID != 7 || chunk.Content != f.chunker.chunks[i] {
			t.Fatalf("chunk %d out of order: %+v", i, chunk)
		}
		if chunk.Embedding[0] != float32(len(f.chunker.chunks[i])) {
			t.Fatalf("chunk %d carries the wrong vector", i)
		}
	}
}

func TestProcessMovesUploadedThroughProcessing(t *testing.T) {
	f := newProcessFixture(domain.StatusUploaded)

	if err := f.useCase().Process(context.Background(), domain.IngestionJob{DocumentID: 7}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []statusCall{
		{from: domain.StatusUploaded, to: domain.StatusProcessing},
		{from: domain.StatusProcessing, to: domain.StatusCompleted},
	}
	if len(f.repo.statusCalls) != len(want) {
		t.Fatalf("unexpected status calls %+v", f.repo.statusCalls)
	}
	for i := range want {
		if f.repo.statusCalls[i] != want[i] {
			t.Fatalf("status call %d = %+v, want %+v", i, f.repo.statusCalls[i], want[i])
		}
	}
}

func TestProcessExtractionFailureMarksFailed(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	f.extractor.err = domain.WrapError(domain.ErrExtraction, "extract pdf", errors.New("malformed xref"))

	err := f.useCase().Process(context.Background(), domain.IngestionJob{DocumentID: 7})
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	doc, _ := f.repo.GetByID(context.Background(), 7)
	if doc.Status != domain.StatusFailed || !strings.Contains(doc.Error, "malformed xref") {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(f.embedder.calls) != 0 {
		t.Fatalf("embedding must not run after extraction failure")
	}
}

func TestProcessZeroChunksFails(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	f.chunker.chunks = nil

	err := f.useCase().Process(context.Background(), domain.IngestionJob{DocumentID: 7})
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if f.repo.status(7) != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", f.repo.status(7))
	}
}

func TestProcessEmbeddingFailureFailsWholeDocument(t *testing.T) {
	for _, workers := range []int{1, 3} {
		f := newProcessFixture(domain.StatusProcessing)
		f.embedder.err = domain.WrapError(domain.ErrEmbedding, "ollama.embed", errors.New("connection refused"))
		f.embedder.failOn = "three"

		err := f.useCase(WithEmbedConcurrency(workers)).Process(context.Background(), domain.IngestionJob{DocumentID: 7})
		if !domain.IsKind(err, domain.ErrEmbedding) {
			t.Fatalf("workers=%d: expected embedding error, got %v", workers, err)
		}
		if f.repo.status(7) != domain.StatusFailed {
			t.Fatalf("workers=%d: status = %s, want failed", workers, f.repo.status(7))
		}
		if len(f.vectors.upserted) != 0 {
			t.Fatalf("workers=%d: no chunk may be stored when embedding fails", workers)
		}
	}
}

func TestProcessWrongDimensionFails(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	vectors := &wrongDimensionEmbedder{embedderFake: f.embedder}

	uc := NewProcessDocumentUseCase(f.repo, f.storage, f.extractor, f.chunker, vectors, f.vectors)
	err := uc.Process(context.Background(), domain.IngestionJob{DocumentID: 7})
	if !domain.IsKind(err, domain.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

type wrongDimensionEmbedder struct {
	*embedderFake
}

func (w *wrongDimensionEmbedder) Dimension() int { return w.embedderFake.dimension + 1 }

func TestProcessRejectsFinishedDocuments(t *testing.T) {
	for _, status := range []domain.DocumentStatus{domain.StatusCompleted, domain.StatusFailed} {
		f := newProcessFixture(status)
		err := f.useCase().Process(context.Background(), domain.IngestionJob{DocumentID: 7})
		if !domain.IsKind(err, domain.ErrConflict) {
			t.Fatalf("%s: expected conflict, got %v", status, err)
		}
		if len(f.repo.statusCalls) != 0 {
			t.Fatalf("%s: status must not change", status)
		}
	}
}

func TestProcessRejectsConcurrentRunForSameDocument(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	uc := f.useCase()
	if !uc.acquire(7) {
		t.Fatalf("first acquire must succeed")
	}
	defer uc.release(7)

	err := uc.Process(context.Background(), domain.IngestionJob{DocumentID: 7})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestProcessMarksFailedEvenWhenContextCancelled(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.embedder.err = context.Canceled

	if err := f.useCase().Process(ctx, domain.IngestionJob{DocumentID: 7}); err == nil {
		t.Fatalf("expected error")
	}
	if f.repo.status(7) != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", f.repo.status(7))
	}
}

func TestProcessByIDReadsFromStorage(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)

	if err := f.useCase().ProcessByID(context.Background(), 7); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if f.repo.status(7) != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", f.repo.status(7))
	}
}

func TestProcessByIDMissingObjectMarksFailed(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	delete(f.storage.objects, "k_pets.txt")

	err := f.useCase().ProcessByID(context.Background(), 7)
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.repo.status(7) != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", f.repo.status(7))
	}
}

func TestMarkFailedRecordsReasonWithCancelledContext(t *testing.T) {
	f := newProcessFixture(domain.StatusProcessing)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.useCase().MarkFailed(ctx, 7, errors.New("ingestion cancelled at shutdown")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	doc, _ := f.repo.GetByID(context.Background(), 7)
	if doc.Status != domain.StatusFailed || doc.Error != "ingestion cancelled at shutdown" {
		t.Fatalf("unexpected document after MarkFailed: status=%s error=%q", doc.Status, doc.Error)
	}
}
