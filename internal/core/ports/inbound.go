package ports

import (
	"context"
	"iter"

	"github.com/kirillkom/documind/internal/core/domain"
)

// UploadRequest is a single document handed to the upload boundary.
type UploadRequest struct {
	ProjectID int64
	Filename  string
	Data      []byte
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	Process(ctx context.Context, job domain.IngestionJob) error
	ProcessByID(ctx context.Context, documentID int64) error
}

// DocumentQueryService answers questions over a project's completed documents.
type DocumentQueryService interface {
	Answer(ctx context.Context, projectID int64, question string) (*domain.Answer, error)
	AnswerStream(ctx context.Context, projectID int64, question string) iter.Seq[domain.StreamEvent]
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	ListByProject(ctx context.Context, projectID int64) ([]domain.Document, error)
}

// ProjectService creates and reads projects.
type ProjectService interface {
	Create(ctx context.Context, name, description string) (*domain.Project, error)
	Get(ctx context.Context, id int64) (*domain.Project, error)
}
