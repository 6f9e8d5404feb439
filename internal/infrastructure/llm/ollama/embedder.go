package ollama

import (
	"context"
	"fmt"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/infrastructure/embedding"
)

type Embedder struct {
	client    *Client
	model     string
	dimension int
	maxChars  int
}

func NewEmbedder(client *Client, model string, dimension, maxChars int) *Embedder {
	if dimension <= 0 {
		dimension = embedding.DefaultDimension
	}
	if maxChars <= 0 {
		maxChars = embedding.DefaultMaxChars
	}
	return &Embedder{client: client, model: model, dimension: dimension, maxChars: maxChars}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.model,
		"input": embedding.NormalizeInput(text, e.maxChars),
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "ollama embed", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embeddings", domain.ErrEmbedding)
	}

	vector := response.Embeddings[0]
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: model %s returned %d dimensions, expected %d", domain.ErrEmbedding, e.model, len(vector), e.dimension)
	}
	return vector, nil
}
