package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
)

func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	project.Name = strings.TrimSpace(project.Name)
	project.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, created_at) VALUES (?, ?, ?)`,
		project.Name, project.Description, toUnix(project.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if project.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	var (
		project   domain.Project
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM projects WHERE id = ?`, id,
	).Scan(&project.ID, &project.Name, &project.Description, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get project", fmt.Errorf("project %d", id))
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	project.CreatedAt = fromUnix(createdAt)
	return &project, nil
}

const documentColumns = `id, project_id, name, storage_key, storage_url, file_type, file_size, status, error_message, chunk_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc                  domain.Document
		fileType, status     string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&doc.ID, &doc.ProjectID, &doc.Name, &doc.StorageKey, &doc.StorageURL, &fileType, &doc.FileSize,
		&status, &doc.Error, &doc.ChunkCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.Status, err = domain.ParseDocumentStatus(status); err != nil {
		return nil, fmt.Errorf("document %d: %w", doc.ID, err)
	}
	doc.FileType = domain.FileType(fileType)
	doc.CreatedAt = fromUnix(createdAt)
	doc.UpdatedAt = fromUnix(updatedAt)
	return &doc, nil
}

func (s *Store) Create(ctx context.Context, doc *domain.Document) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO documents (project_id, name, storage_key, storage_url, file_type, file_size, status, error_message, chunk_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ProjectID, doc.Name, doc.StorageKey, doc.StorageURL, string(doc.FileType), doc.FileSize,
		doc.Status.String(), doc.Error, doc.ChunkCount, toUnix(doc.CreatedAt), toUnix(doc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %d", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	docs, err := s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	out := make([]domain.Document, 0, len(docs))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *Store) ListByProject(ctx context.Context, projectID int64) ([]domain.Document, error) {
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = ? ORDER BY created_at DESC, id DESC`,
		projectID,
	)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to domain.DocumentStatus, errMessage string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: illegal status transition %s -> %s", domain.ErrConflict, from, to)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to.String(), errMessage, toUnix(s.now()), id, from.String(),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	} else if affected > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %d is %s, expected %s", domain.ErrConflict, id, current.Status, from)
}

func (s *Store) SetChunkCount(ctx context.Context, id int64, count int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET chunk_count = ?, updated_at = ? WHERE id = ?`,
		count, toUnix(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update chunk count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update chunk count rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "set chunk count", fmt.Errorf("document %d", id))
	}
	return nil
}
