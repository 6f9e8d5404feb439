package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/documind/internal/core/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", 5)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDocument(t *testing.T, s *Store, projectID int64, name string) *domain.Document {
	t.Helper()
	now := time.Now().UTC()
	doc := &domain.Document{
		ProjectID:  projectID,
		Name:       name,
		StorageURL: "file:///tmp/" + name,
		FileType:   domain.FileTypeText,
		FileSize:   10,
		Status:     domain.StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return doc
}

func seedProject(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	p := &domain.Project{Name: name}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	return p.ID
}

func addChunk(t *testing.T, s *Store, docID int64, index int, content string, vec []float32) int64 {
	t.Helper()
	c := &domain.DocumentChunk{DocumentID: docID, Index: index, Content: content, Embedding: vec}
	if err := s.UpsertChunk(context.Background(), c); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}
	return c.ID
}

func complete(t *testing.T, s *Store, docID int64) {
	t.Helper()
	if err := s.UpdateStatus(context.Background(), docID, domain.StatusProcessing, domain.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
}

func TestTopKSimilarOnlyReturnsCompletedDocumentsOfProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1 := seedProject(t, s, "one")
	p2 := seedProject(t, s, "two")

	done := seedDocument(t, s, p1, "done.txt")
	pending := seedDocument(t, s, p1, "pending.txt")
	other := seedDocument(t, s, p2, "other.txt")

	want := addChunk(t, s, done.ID, 0, "from completed", []float32{1, 0})
	addChunk(t, s, pending.ID, 0, "from processing", []float32{1, 0})
	addChunk(t, s, other.ID, 0, "from other project", []float32{1, 0})
	complete(t, s, done.ID)
	complete(t, s, other.ID)

	got, err := s.TopKSimilar(ctx, p1, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	if len(got) != 1 || got[0].Chunk.ID != want {
		t.Fatalf("expected only the completed chunk of project %d, got %+v", p1, got)
	}
	if got[0].Score < 0.999 {
		t.Fatalf("expected similarity 1, got %f", got[0].Score)
	}
}

func TestTopKSimilarOrdersByScoreThenID(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s, "p")
	doc := seedDocument(t, s, p, "a.txt")

	first := addChunk(t, s, doc.ID, 0, "exact", []float32{1, 0})
	addChunk(t, s, doc.ID, 1, "orthogonal", []float32{0, 1})
	diagonal := addChunk(t, s, doc.ID, 2, "diagonal", []float32{1, 1})
	scaled := addChunk(t, s, doc.ID, 3, "exact scaled", []float32{2, 0})
	complete(t, s, doc.ID)

	got, err := s.TopKSimilar(context.Background(), p, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	wantIDs := []int64{first, scaled, diagonal}
	if len(got) != len(wantIDs) {
		t.Fatalf("expected %d results, got %d", len(wantIDs), len(got))
	}
	for i, want := range wantIDs {
		if got[i].Chunk.ID != want {
			t.Fatalf("position %d: expected chunk %d, got %+v", i, want, got)
		}
	}
	if got[0].Score != got[1].Score {
		t.Fatalf("expected a tie between the exact matches, got %f and %f", got[0].Score, got[1].Score)
	}
}

func TestTopKSimilarDefaultsKAndHandlesEmpty(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s, "p")

	got, err := s.TopKSimilar(context.Background(), p, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %#v", got)
	}

	doc := seedDocument(t, s, p, "many.txt")
	for i := 0; i < 8; i++ {
		addChunk(t, s, doc.ID, i, "chunk", []float32{1, float32(i)})
	}
	complete(t, s, doc.ID)

	got, err = s.TopKSimilar(context.Background(), p, []float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected default k of 5, got %d", len(got))
	}
}

func TestUpsertChunkIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	p := seedProject(t, s, "p")
	doc := seedDocument(t, s, p, "a.txt")

	first := addChunk(t, s, doc.ID, 0, "original", []float32{1, 0})
	second := addChunk(t, s, doc.ID, 0, "retried", []float32{0, 1})
	if first != second {
		t.Fatalf("expected retry to reuse chunk %d, got %d", first, second)
	}
	complete(t, s, doc.ID)

	got, err := s.TopKSimilar(context.Background(), p, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("TopKSimilar() error = %v", err)
	}
	if len(got) != 1 || got[0].Chunk.Content != "original" {
		t.Fatalf("expected the original chunk to be kept, got %+v", got)
	}
}

func TestUpdateStatusStateMachine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s, "p")
	doc := seedDocument(t, s, p, "a.txt")

	if err := s.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusFailed, "no text"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	err := s.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, domain.StatusCompleted, "")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict once failed, got %v", err)
	}

	got, err := s.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusFailed || got.Error != "no text" {
		t.Fatalf("unexpected document %+v", got)
	}

	if err := s.UpdateStatus(ctx, 999, domain.StatusProcessing, domain.StatusCompleted, ""); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDocumentsReadPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s, "p")
	a := seedDocument(t, s, p, "a.txt")
	b := seedDocument(t, s, p, "b.txt")

	docs, err := s.GetByIDs(ctx, []int64{b.ID, 12345, a.ID})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != b.ID || docs[1].ID != a.ID {
		t.Fatalf("unexpected documents %+v", docs)
	}

	listed, err := s.ListByProject(ctx, p)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListByProject() = %d docs, %v", len(listed), err)
	}

	if err := s.SetChunkCount(ctx, a.ID, 4); err != nil {
		t.Fatalf("SetChunkCount() error = %v", err)
	}
	got, _ := s.GetByID(ctx, a.ID)
	if got.ChunkCount != 4 {
		t.Fatalf("expected chunk count 4, got %d", got.ChunkCount)
	}

	if _, err := s.GetProject(ctx, 777); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
