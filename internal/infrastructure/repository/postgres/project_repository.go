package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) CreateProject(ctx context.Context, project *domain.Project) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO projects (name, description)
VALUES ($1, $2)
RETURNING id, created_at
`, strings.TrimSpace(project.Name), project.Description)
	if err := row.Scan(&project.ID, &project.CreatedAt); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, description, created_at
FROM projects
WHERE id = $1
`, id)

	var project domain.Project
	if err := row.Scan(&project.ID, &project.Name, &project.Description, &project.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get project", fmt.Errorf("project %d", id))
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &project, nil
}
