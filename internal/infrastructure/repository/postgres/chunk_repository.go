package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository is the pgvector backed vector store.
type ChunkRepository struct {
	db       *sql.DB
	defaultK int
}

func NewChunkRepository(db *sql.DB, defaultK int) *ChunkRepository {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &ChunkRepository{db: db, defaultK: defaultK}
}

// UpsertChunk inserts the chunk unless (document_id, chunk_index) already
// exists. Existing rows are never rewritten; the stored ID is returned either way.
func (r *ChunkRepository) UpsertChunk(ctx context.Context, chunk *domain.DocumentChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %d of document %d has no embedding", domain.ErrInvalidInput, chunk.Index, chunk.DocumentID)
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO document_chunks (document_id, chunk_index, content, embedding)
VALUES ($1, $2, $3, $4)
ON CONFLICT (document_id, chunk_index) DO UPDATE SET chunk_index = EXCLUDED.chunk_index
RETURNING id, created_at
`, chunk.DocumentID, chunk.Index, chunk.Content, pgvector.NewVector(chunk.Embedding))
	if err := row.Scan(&chunk.ID, &chunk.CreatedAt); err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// TopKSimilar ranks chunks of the project's completed documents by cosine
// similarity, breaking ties by ascending chunk ID.
func (r *ChunkRepository) TopKSimilar(ctx context.Context, projectID int64, query []float32, k int) ([]domain.SimilarityResult, error) {
	if k <= 0 {
		k = r.defaultK
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content, c.created_at,
	1 - (c.embedding <=> $2::vector) AS similarity
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.project_id = $1 AND d.status = $3
ORDER BY similarity DESC, c.id ASC
LIMIT $4
`, projectID, pgvector.NewVector(query), domain.StatusCompleted.String(), k)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SimilarityResult, 0, k)
	for rows.Next() {
		var res domain.SimilarityResult
		if err := rows.Scan(
			&res.Chunk.ID, &res.Chunk.DocumentID, &res.Chunk.Index, &res.Chunk.Content, &res.Chunk.CreatedAt,
			&res.Score,
		); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity rows: %w", err)
	}
	return out, nil
}
