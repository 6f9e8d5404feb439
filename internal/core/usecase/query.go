package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

const DefaultTopK = 5

type QueryUseCase struct {
	projects    ports.ProjectRepository
	documents   ports.DocumentRepository
	embedder    ports.Embedder
	vectors     ports.VectorStore
	generator   ports.Generator
	topK        int
	productName string
}

func NewQueryUseCase(
	projects ports.ProjectRepository,
	documents ports.DocumentRepository,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	generator ports.Generator,
	topK int,
	productName string,
) *QueryUseCase {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if strings.TrimSpace(productName) == "" {
		productName = DefaultProductName
	}
	return &QueryUseCase{
		projects:    projects,
		documents:   documents,
		embedder:    embedder,
		vectors:     vectors,
		generator:   generator,
		topK:        topK,
		productName: productName,
	}
}

type retrieval struct {
	results []domain.SimilarityResult
	sources []domain.Source
	prompt  string
}

func (r *retrieval) empty() bool { return len(r.results) == 0 }

func (uc *QueryUseCase) Answer(ctx context.Context, projectID int64, question string) (*domain.Answer, error) {
	r, err := uc.retrieve(ctx, projectID, question)
	if err != nil {
		return nil, err
	}
	if r.empty() {
		return &domain.Answer{
			Text:    NoDocumentsMessage,
			Chunks:  []domain.RetrievedChunk{},
			Sources: []domain.Source{},
		}, nil
	}

	text, err := uc.generator.Generate(ctx, r.prompt)
	if err != nil {
		return nil, generationError(err)
	}

	return &domain.Answer{
		Text:    text,
		Chunks:  retrievedChunks(r.results),
		Sources: r.sources,
	}, nil
}

// AnswerStream yields text events in arrival order followed by exactly one
// terminal event: Done with the sources, or Err.
func (uc *QueryUseCase) AnswerStream(ctx context.Context, projectID int64, question string) iter.Seq[domain.StreamEvent] {
	return func(yield func(domain.StreamEvent) bool) {
		r, err := uc.retrieve(ctx, projectID, question)
		if err != nil {
			yield(domain.StreamEvent{Err: err})
			return
		}
		if r.empty() {
			if !yield(domain.StreamEvent{Text: NoDocumentsMessage}) {
				return
			}
			yield(domain.StreamEvent{Done: true, Sources: []domain.Source{}})
			return
		}

		for fragment, err := range uc.generator.GenerateStream(ctx, r.prompt) {
			if err != nil {
				yield(domain.StreamEvent{Err: generationError(err)})
				return
			}
			if !yield(domain.StreamEvent{Text: fragment}) {
				return
			}
		}
		yield(domain.StreamEvent{Done: true, Sources: r.sources, ChunkCount: len(r.results)})
	}
}

func (uc *QueryUseCase) retrieve(ctx context.Context, projectID int64, question string) (*retrieval, error) {
	question = strings.TrimSpace(question)
	if projectID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("project id must be positive, got %d", projectID))
	}
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", errors.New("question is empty"))
	}

	if _, err := uc.projects.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("check project: %w", err)
	}

	queryVector, err := uc.embedder.Embed(ctx, question)
	if err != nil {
		if domain.IsKind(err, domain.ErrEmbedding) {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		return nil, domain.WrapError(domain.ErrEmbedding, "embed question", err)
	}

	results, err := uc.vectors.TopKSimilar(ctx, projectID, queryVector, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("search similar chunks: %w", err)
	}
	if len(results) == 0 {
		return &retrieval{}, nil
	}

	sources, err := uc.resolveSources(ctx, results)
	if err != nil {
		return nil, err
	}

	return &retrieval{
		results: results,
		sources: sources,
		prompt:  BuildPrompt(uc.productName, BuildContext(results), question),
	}, nil
}

// resolveSources returns each referenced document once, in the order the
// chunks first mention it.
func (uc *QueryUseCase) resolveSources(ctx context.Context, results []domain.SimilarityResult) ([]domain.Source, error) {
	seen := make(map[int64]struct{}, len(results))
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Chunk.DocumentID]; ok {
			continue
		}
		seen[r.Chunk.DocumentID] = struct{}{}
		ids = append(ids, r.Chunk.DocumentID)
	}

	docs, err := uc.documents.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load source documents: %w", err)
	}
	sources := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, domain.Source{ID: doc.ID, Name: doc.Name, FileURL: doc.StorageURL})
	}
	return sources, nil
}

func retrievedChunks(results []domain.SimilarityResult) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RetrievedChunk{
			ID:         r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Content:    r.Chunk.Content,
			Similarity: r.Score,
		})
	}
	return out
}

func generationError(err error) error {
	if domain.IsKind(err, domain.ErrGeneration) {
		return fmt.Errorf("generate answer: %w", err)
	}
	return domain.WrapError(domain.ErrGeneration, "generate answer", err)
}
