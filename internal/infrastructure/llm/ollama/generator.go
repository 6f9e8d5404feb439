package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/infrastructure/llm"
)

const maxStreamLine = 1 << 20

type Generator struct {
	client *Client
	models []string
	params domain.GenerationParams
}

// NewGenerator builds a generator that tries models in order on every call.
func NewGenerator(client *Client, models []string, params domain.GenerationParams) *Generator {
	return &Generator{
		client: client,
		models: append([]string(nil), models...),
		params: params,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	model, err := g.selectModel(ctx)
	if err != nil {
		return "", err
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", g.request(model, prompt, false), &response, "generate"); err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "ollama generate "+model, err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (g *Generator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		model, err := g.selectModel(ctx)
		if err != nil {
			yield("", err)
			return
		}

		body, err := g.client.openStream(ctx, "/api/generate", g.request(model, prompt, true), "generate_stream")
		if err != nil {
			yield("", domain.WrapError(domain.ErrGeneration, "ollama stream "+model, err))
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk struct {
				Response string `json:"response"`
				Done     bool   `json:"done"`
				Error    string `json:"error"`
			}
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", fmt.Errorf("%w: decode stream chunk: %w", domain.ErrGeneration, err))
				return
			}
			if chunk.Error != "" {
				yield("", fmt.Errorf("%w: ollama stream: %s", domain.ErrGeneration, chunk.Error))
				return
			}
			if chunk.Response != "" && !yield(chunk.Response, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = errors.Join(ctxErr, err)
			}
			yield("", domain.WrapError(domain.ErrGeneration, "read ollama stream", err))
			return
		}
		yield("", fmt.Errorf("%w: ollama stream ended before completion", domain.ErrGeneration))
	}
}

func (g *Generator) selectModel(ctx context.Context) (string, error) {
	model, err := llm.SelectModel(ctx, g.models, g.initModel)
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "select generation model", err)
	}
	return model, nil
}

// initModel asks the server for the model card; unknown or unloadable models
// fail here before any prompt is sent.
func (g *Generator) initModel(ctx context.Context, model string) error {
	var card json.RawMessage
	return g.client.postJSON(ctx, "/api/show", map[string]any{"model": model}, &card, "show")
}

func (g *Generator) request(model, prompt string, stream bool) map[string]any {
	return map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": stream,
		"options": map[string]any{
			"temperature": g.params.Temperature,
			"top_p":       g.params.TopP,
			"top_k":       g.params.TopK,
			"num_predict": g.params.MaxOutputTokens,
		},
	}
}
