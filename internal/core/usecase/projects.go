package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

const maxProjectNameLen = 200

type ProjectUseCase struct {
	repo ports.ProjectRepository
}

func NewProjectUseCase(repo ports.ProjectRepository) *ProjectUseCase {
	return &ProjectUseCase{repo: repo}
}

func (uc *ProjectUseCase) Create(ctx context.Context, name, description string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create project", errors.New("name is required"))
	}
	if len([]rune(name)) > maxProjectNameLen {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create project", fmt.Errorf("name is longer than %d characters", maxProjectNameLen))
	}

	project := &domain.Project{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.repo.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

func (uc *ProjectUseCase) Get(ctx context.Context, id int64) (*domain.Project, error) {
	if id <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get project", fmt.Errorf("project id must be positive, got %d", id))
	}
	return uc.repo.GetProject(ctx, id)
}

// DocumentQueryUseCase is the status polling read path.
type DocumentQueryUseCase struct {
	projects ports.ProjectRepository
	repo     ports.DocumentRepository
}

func NewDocumentQueryUseCase(projects ports.ProjectRepository, repo ports.DocumentRepository) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{projects: projects, repo: repo}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	if id <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", fmt.Errorf("document id must be positive, got %d", id))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *DocumentQueryUseCase) ListByProject(ctx context.Context, projectID int64) ([]domain.Document, error) {
	if projectID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("project id must be positive, got %d", projectID))
	}
	if _, err := uc.projects.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}
	return uc.repo.ListByProject(ctx, projectID)
}
