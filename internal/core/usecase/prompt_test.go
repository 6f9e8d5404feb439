package usecase

import (
	"testing"

	"github.com/kirillkom/documind/internal/core/domain"
)

const goldenPrompt = `You are a helpful AI assistant for the DocuMind document analysis platform.

Your task is to answer the user's question based ONLY on the context provided below.

STRICT RULES:
1. If the answer is not in the context, respond with: "I cannot find that information in the uploaded documents."
2. Do not use any external knowledge or assumptions.
3. Quote relevant parts of the context when possible.
4. Be concise but complete in your answers.

CONTEXT:
"""
Cats are mammals.

---

Dogs are mammals too.
"""

USER QUESTION:
"""
Are dogs mammals?
"""

ANSWER:`

func TestBuildPromptGolden(t *testing.T) {
	contextBlock := BuildContext([]domain.SimilarityResult{
		{Chunk: domain.DocumentChunk{Content: "Cats are mammals."}},
		{Chunk: domain.DocumentChunk{Content: "Dogs are mammals too."}},
	})

	got := BuildPrompt(DefaultProductName, contextBlock, "Are dogs mammals?")
	if got != goldenPrompt {
		t.Fatalf("prompt mismatch\n--- got ---\n%s\n--- want ---\n%s", got, goldenPrompt)
	}
}

func TestBuildContextSingleChunkHasNoSeparator(t *testing.T) {
	got := BuildContext([]domain.SimilarityResult{{Chunk: domain.DocumentChunk{Content: "only"}}})
	if got != "only" {
		t.Fatalf("got %q", got)
	}
}
