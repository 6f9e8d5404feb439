package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

const markFailedTimeout = 10 * time.Second

type ProcessDocumentUseCase struct {
	repo             ports.DocumentRepository
	storage          ports.ObjectStorage
	extractor        ports.TextExtractor
	chunker          ports.Chunker
	embedder         ports.Embedder
	vectors          ports.VectorStore
	embedConcurrency int

	mu      sync.Mutex
	running map[int64]struct{}
}

type ProcessOption func(*ProcessDocumentUseCase)

// WithEmbedConcurrency bounds the number of chunk embeddings in flight for
// one document. Values below 2 keep embedding sequential.
func WithEmbedConcurrency(n int) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		uc.embedConcurrency = max(n, 1)
	}
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:             repo,
		storage:          storage,
		extractor:        extractor,
		chunker:          chunker,
		embedder:         embedder,
		vectors:          vectors,
		embedConcurrency: 1,
		running:          make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Process runs the pipeline with the bytes carried by the job.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, job domain.IngestionJob) error {
	return uc.run(ctx, job.DocumentID, func(context.Context, *domain.Document) ([]byte, error) {
		return job.Data, nil
	})
}

// ProcessByID rereads the source bytes from object storage.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID int64) error {
	return uc.run(ctx, documentID, uc.readSource)
}

type sourceLoader func(ctx context.Context, doc *domain.Document) ([]byte, error)

func (uc *ProcessDocumentUseCase) run(ctx context.Context, documentID int64, load sourceLoader) error {
	if !uc.acquire(documentID) {
		return domain.WrapError(domain.ErrConflict, "process document", fmt.Errorf("document %d is already being processed", documentID))
	}
	defer uc.release(documentID)

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	switch doc.Status {
	case domain.StatusUploaded:
		if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusUploaded, domain.StatusProcessing, ""); err != nil {
			return fmt.Errorf("set status=processing: %w", err)
		}
	case domain.StatusProcessing:
	default:
		return domain.WrapError(domain.ErrConflict, "process document", fmt.Errorf("document %d is already %s", documentID, doc.Status))
	}

	started := time.Now()
	count, err := uc.processPipeline(ctx, doc, load)
	if err != nil {
		slog.Error("document_processing_failed", "document_id", documentID, "error", err)
		if failErr := uc.MarkFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	slog.Info("document_processed",
		"document_id", documentID,
		"chunks", count,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document, load sourceLoader) (int, error) {
	data, err := load(ctx, doc)
	if err != nil {
		return 0, err
	}

	text, err := uc.extractor.Extract(ctx, data, doc.FileType)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}

	chunks, err := uc.chunk(text)
	if err != nil {
		return 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if err := uc.index(ctx, doc.ID, chunks, vectors); err != nil {
		return 0, err
	}
	if err := uc.repo.SetChunkCount(ctx, doc.ID, len(chunks)); err != nil {
		return 0, fmt.Errorf("record chunk count: %w", err)
	}
	return len(chunks), nil
}

func (uc *ProcessDocumentUseCase) readSource(ctx context.Context, doc *domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, domain.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if len(data) > domain.MaxUploadBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read source document", fmt.Errorf("stored file exceeds %d bytes", domain.MaxUploadBytes))
	}
	return data, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

// embed returns one vector per chunk in chunk order. The first failure
// cancels the remaining calls.
func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	dimension := uc.embedder.Dimension()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.embedConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			vector, err := uc.embedder.Embed(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			if len(vector) != dimension {
				return domain.WrapError(domain.ErrEmbedding, "embed chunk",
					fmt.Errorf("chunk %d has %d dimensions, expected %d", i, len(vector), dimension))
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, documentID int64, chunks []string, vectors [][]float32) error {
	for i, content := range chunks {
		chunk := &domain.DocumentChunk{
			DocumentID: documentID,
			Index:      i,
			Content:    content,
			Embedding:  vectors[i],
		}
		if err := uc.vectors.UpsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("store chunk %d: %w", i, err)
		}
	}
	return nil
}

// MarkFailed moves a processing document to failed with reason. It survives a
// cancelled or timed out ctx so the document does not stay in processing.
func (uc *ProcessDocumentUseCase) MarkFailed(ctx context.Context, documentID int64, processErr error) error {
	if processErr == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markFailedTimeout)
	defer cancel()
	return uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, domain.StatusFailed, processErr.Error())
}

func (uc *ProcessDocumentUseCase) acquire(documentID int64) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, busy := uc.running[documentID]; busy {
		return false
	}
	uc.running[documentID] = struct{}{}
	return true
}

func (uc *ProcessDocumentUseCase) release(documentID int64) {
	uc.mu.Lock()
	delete(uc.running, documentID)
	uc.mu.Unlock()
}
