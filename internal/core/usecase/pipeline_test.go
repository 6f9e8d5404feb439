package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
	"github.com/kirillkom/documind/internal/infrastructure/chunking"
	"github.com/kirillkom/documind/internal/infrastructure/embedding/deterministic"
	"github.com/kirillkom/documind/internal/infrastructure/extractor"
	"github.com/kirillkom/documind/internal/infrastructure/queue/inprocess"
	"github.com/kirillkom/documind/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/documind/internal/infrastructure/storage/localfs"
)

func TestUploadedTextIsIndexedAndSearchable(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(ctx, ":memory:", 5)
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	storage, err := localfs.New(t.TempDir(), "file:///data")
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	chunker, err := chunking.NewSplitter(chunking.DefaultChunkSize, chunking.DefaultOverlap)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	embedder := deterministic.NewEmbedder(0, 0)

	processor := NewProcessDocumentUseCase(store, storage, extractor.NewDefaultRegistry(), chunker, embedder, store)
	dispatcher := inprocess.New(processor, inprocess.Options{Workers: 1, Timeout: time.Minute})
	ingestor := NewIngestDocumentUseCase(store, store, storage, dispatcher)

	project, err := NewProjectUseCase(store).Create(ctx, "pets", "")
	if err != nil {
		t.Fatalf("Create project error = %v", err)
	}

	const text = "Cats are mammals. Dogs are mammals too."
	doc, err := ingestor.Upload(ctx, ports.UploadRequest{ProjectID: project.ID, Filename: "pets.txt", Data: []byte(text)})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	dispatcher.Wait()

	got, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Error != "" {
		t.Fatalf("status = %s (error %q), want completed", got.Status, got.Error)
	}
	if got.ChunkCount != 1 {
		t.Fatalf("chunk count = %d, want 1", got.ChunkCount)
	}

	query, err := embedder.Embed(ctx, text)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	results, err := store.TopKSimilar(ctx, project.ID, query, 5)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(results))
	}
	chunk := results[0].Chunk
	if chunk.DocumentID != doc.ID || chunk.Index != 0 || chunk.Content != chunking.Normalize(text) {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Fatalf("identical text should score 1, got %f", results[0].Score)
	}
}
