package ports

import (
	"context"
	"io"
	"iter"

	"github.com/kirillkom/documind/internal/core/domain"
)

// ProjectRepository persists and reads projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	GetByIDs(ctx context.Context, ids []int64) ([]domain.Document, error)
	ListByProject(ctx context.Context, projectID int64) ([]domain.Document, error)
	// UpdateStatus moves a document from one status to another. It fails with
	// domain.ErrConflict when the stored status is not `from`.
	UpdateStatus(ctx context.Context, id int64, from, to domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id int64, count int) error
}

// VectorStore keeps chunk embeddings and answers project-scoped similarity queries.
type VectorStore interface {
	UpsertChunk(ctx context.Context, chunk *domain.DocumentChunk) error
	TopKSimilar(ctx context.Context, projectID int64, query []float32, k int) ([]domain.SimilarityResult, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string
}

// IngestionTrigger starts background processing of an uploaded document.
// Implementations return once the job is handed off.
type IngestionTrigger interface {
	BeginIngestion(ctx context.Context, job domain.IngestionJob) error
}

// TextExtractor extracts plain text from raw document bytes.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error)
}

// Chunker splits text into overlapping windows.
type Chunker interface {
	Split(text string) []string
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Generator produces answers from a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream yields text fragments in arrival order. A non-nil error
	// is always the last value yielded.
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}
