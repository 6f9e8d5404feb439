package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

type IngestDocumentUseCase struct {
	projects ports.ProjectRepository
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	trigger  ports.IngestionTrigger
}

func NewIngestDocumentUseCase(
	projects ports.ProjectRepository,
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	trigger ports.IngestionTrigger,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		projects: projects,
		repo:     repo,
		storage:  storage,
		trigger:  trigger,
	}
}

// Upload stores the file, records the document as processing and hands it
// to the ingestion trigger. The returned document reflects a trigger failure
// as status failed instead of an error.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	fileType, err := validateUpload(req)
	if err != nil {
		return nil, err
	}
	if _, err := uc.projects.GetProject(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(req.Filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(req.Data)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ProjectID:  req.ProjectID,
		Name:       filepath.Base(req.Filename),
		StorageKey: storageKey,
		StorageURL: uc.storage.URL(storageKey),
		FileType:   fileType,
		FileSize:   int64(len(req.Data)),
		Status:     domain.StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	job := domain.IngestionJob{DocumentID: doc.ID, FileType: fileType, Data: req.Data}
	if err := uc.trigger.BeginIngestion(ctx, job); err != nil {
		slog.Error("ingestion_schedule_failed", "document_id", doc.ID, "error", err)
		reason := fmt.Sprintf("schedule ingestion: %v", err)
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusFailed, reason); markErr != nil {
			slog.Error("document_mark_failed_error", "document_id", doc.ID, "error", markErr)
		} else {
			doc.Status = domain.StatusFailed
			doc.Error = reason
		}
	}
	return doc, nil
}

func validateUpload(req ports.UploadRequest) (domain.FileType, error) {
	if req.ProjectID <= 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("project id must be positive, got %d", req.ProjectID))
	}
	fileType, err := domain.FileTypeFromName(req.Filename)
	if err != nil {
		return "", err
	}
	switch size := len(req.Data); {
	case size == 0:
		return "", domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	case size > domain.MaxUploadBytes:
		return "", domain.WrapError(domain.ErrInvalidInput, "upload document",
			fmt.Errorf("file is %d bytes, limit is %d", size, domain.MaxUploadBytes))
	}
	return fileType, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
