package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/kirillkom/documind/internal/core/domain"
)

type statusCall struct {
	from, to domain.DocumentStatus
	errMsg   string
}

// memoryRepo is a project and document repository kept in maps.
type memoryRepo struct {
	mu          sync.Mutex
	projects    map[int64]domain.Project
	docs        map[int64]domain.Document
	nextID      int64
	createErr   error
	statusErr   error
	statusCalls []statusCall
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		projects: map[int64]domain.Project{1: {ID: 1, Name: "handbook"}},
		docs:     map[int64]domain.Document{},
		nextID:   100,
	}
}

func (r *memoryRepo) CreateProject(_ context.Context, p *domain.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	r.projects[p.ID] = *p
	return nil
}

func (r *memoryRepo) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get project", fmt.Errorf("project %d", id))
	}
	return &p, nil
}

func (r *memoryRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryRepo) put(doc domain.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("document %d", id))
	}
	return &doc, nil
}

func (r *memoryRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Document{}
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByProject(_ context.Context, projectID int64) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Document{}
	for _, doc := range r.docs {
		if doc.ProjectID == projectID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id int64, from, to domain.DocumentStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCalls = append(r.statusCalls, statusCall{from: from, to: to, errMsg: errMessage})
	if r.statusErr != nil {
		return r.statusErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if doc.Status != from || !from.CanTransitionTo(to) {
		return domain.ErrConflict
	}
	doc.Status = to
	doc.Error = errMessage
	r.docs[id] = doc
	return nil
}

func (r *memoryRepo) SetChunkCount(_ context.Context, id int64, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.docs[id]
	doc.ChunkCount = count
	r.docs[id] = doc
	return nil
}

func (r *memoryRepo) status(id int64) domain.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id].Status
}

type storageFake struct {
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = raw
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", fmt.Errorf("key %q", key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *storageFake) URL(key string) string { return "file:///data/" + key }

type triggerFake struct {
	jobs []domain.IngestionJob
	err  error
}

func (t *triggerFake) BeginIngestion(_ context.Context, job domain.IngestionJob) error {
	if t.err != nil {
		return t.err
	}
	t.jobs = append(t.jobs, job)
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, []byte, domain.FileType) (string, error) {
	return f.text, f.err
}

type chunkerFake struct {
	chunks []string
}

func (f *chunkerFake) Split(string) []string { return f.chunks }

// embedderFake maps text to a vector whose first element is the text length.
type embedderFake struct {
	mu        sync.Mutex
	dimension int
	failOn    string
	err       error
	calls     []string
}

func (f *embedderFake) Dimension() int { return f.dimension }

func (f *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.err != nil && (f.failOn == "" || f.failOn == text) {
		return nil, f.err
	}
	v := make([]float32, f.dimension)
	v[0] = float32(len(text))
	return v, nil
}

type vectorStoreFake struct {
	mu        sync.Mutex
	upserted  []domain.DocumentChunk
	upsertErr error
	results   []domain.SimilarityResult
	searchErr error
	lastK     int
}

func (f *vectorStoreFake) UpsertChunk(_ context.Context, chunk *domain.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	chunk.ID = int64(len(f.upserted) + 1)
	f.upserted = append(f.upserted, *chunk)
	return nil
}

func (f *vectorStoreFake) TopKSimilar(_ context.Context, _ int64, _ []float32, k int) ([]domain.SimilarityResult, error) {
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

type generatorFake struct {
	text      string
	err       error
	fragments []string
	streamErr error
	prompts   []string
	pulled    int
}

func (g *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}

func (g *generatorFake) GenerateStream(_ context.Context, prompt string) iter.Seq2[string, error] {
	g.prompts = append(g.prompts, prompt)
	return func(yield func(string, error) bool) {
		for _, f := range g.fragments {
			g.pulled++
			if !yield(f, nil) {
				return
			}
		}
		if g.streamErr != nil {
			yield("", g.streamErr)
		}
	}
}
