package sqlite

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/kirillkom/documind/internal/core/domain"
)

// UpsertChunk inserts the chunk unless (document_id, chunk_index) already
// exists, then loads the stored ID.
func (s *Store) UpsertChunk(ctx context.Context, chunk *domain.DocumentChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: chunk %d of document %d has no embedding", domain.ErrInvalidInput, chunk.Index, chunk.DocumentID)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO document_chunks (document_id, chunk_index, content, embedding, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (document_id, chunk_index) DO NOTHING`,
		chunk.DocumentID, chunk.Index, chunk.Content, encodeFloat32s(chunk.Embedding), toUnix(s.now()),
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM document_chunks WHERE document_id = ? AND chunk_index = ?`,
		chunk.DocumentID, chunk.Index,
	).Scan(&chunk.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("load chunk id: %w", err)
	}
	chunk.CreatedAt = fromUnix(createdAt)
	return nil
}

// TopKSimilar scans every chunk of the project's completed documents and
// keeps the k best by cosine similarity, ties going to the lower chunk ID.
func (s *Store) TopKSimilar(ctx context.Context, projectID int64, query []float32, k int) ([]domain.SimilarityResult, error) {
	if k <= 0 {
		k = s.defaultK
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding, c.created_at
FROM document_chunks c
JOIN documents d ON d.id = c.document_id
WHERE d.project_id = ? AND d.status = ?`,
		projectID, domain.StatusCompleted.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	queryNorm := norm(query)
	h := &resultHeap{}
	var buf []float32
	for rows.Next() {
		var (
			chunk     domain.DocumentChunk
			blob      []byte
			createdAt int64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Content, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			return nil, fmt.Errorf("decode embedding of chunk %d: %w", chunk.ID, err)
		}
		if len(buf) != len(query) {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, query has %d", domain.ErrInvalidInput, chunk.ID, len(buf), len(query))
		}
		chunk.CreatedAt = fromUnix(createdAt)

		candidate := domain.SimilarityResult{Chunk: chunk, Score: cosine(query, buf, queryNorm)}
		if h.Len() < k {
			heap.Push(h, candidate)
		} else if ranksBefore(candidate, (*h)[0]) {
			(*h)[0] = candidate
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	out := make([]domain.SimilarityResult, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool { return ranksBefore(out[i], out[j]) })
	return out, nil
}

func ranksBefore(a, b domain.SimilarityResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Chunk.ID < b.Chunk.ID
}

// resultHeap keeps the worst retained result at the root.
type resultHeap []domain.SimilarityResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(domain.SimilarityResult)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func cosine(query, vec []float32, queryNorm float64) float64 {
	vecNorm := norm(vec)
	if queryNorm == 0 || vecNorm == 0 {
		return 0
	}
	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(vec[i])
	}
	return dot / (queryNorm * vecNorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32sInto(dst []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return dst, nil
}
