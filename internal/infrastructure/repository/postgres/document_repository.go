package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, project_id, name, storage_key, storage_url, file_type, file_size, status, error_message, chunk_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		fileType string
		status   string
	)
	err := row.Scan(
		&doc.ID, &doc.ProjectID, &doc.Name, &doc.StorageKey, &doc.StorageURL, &fileType, &doc.FileSize,
		&status, &doc.Error, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if doc.Status, err = domain.ParseDocumentStatus(status); err != nil {
		return nil, fmt.Errorf("document %d: %w", doc.ID, err)
	}
	doc.FileType = domain.FileType(fileType)
	return &doc, nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO documents (
	project_id, name, storage_key, storage_url, file_type, file_size, status, error_message, chunk_count, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`,
		doc.ProjectID, doc.Name, doc.StorageKey, doc.StorageURL, string(doc.FileType), doc.FileSize,
		doc.Status.String(), doc.Error, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	if err := row.Scan(&doc.ID); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %d", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// GetByIDs returns the documents that exist, in the order of ids.
func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []int64) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		byID[doc.ID] = *doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	out := make([]domain.Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *DocumentRepository) ListByProject(ctx context.Context, projectID int64) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE project_id = $1 ORDER BY created_at DESC, id DESC`,
		projectID,
	)
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

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.DocumentStatus, errMessage string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: illegal status transition %s -> %s", domain.ErrConflict, from, to)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, error_message = $4, updated_at = $5
WHERE id = $1 AND status = $2
`, id, from.String(), to.String(), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %d is %s, expected %s", domain.ErrConflict, id, current.Status, from)
}

func (r *DocumentRepository) SetChunkCount(ctx context.Context, id int64, count int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET chunk_count = $2, updated_at = $3
WHERE id = $1
`, id, count, time.Now().UTC())
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
