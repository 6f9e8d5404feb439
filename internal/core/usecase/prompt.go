package usecase

import (
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
)

const (
	DefaultProductName = "DocuMind"

	// NoDocumentsMessage is the answer for a project without completed documents.
	NoDocumentsMessage = "No documents have been processed yet. Please upload and process documents first."

	// RefusalMessage is what the model is told to say when the context lacks the answer.
	RefusalMessage = "I cannot find that information in the uploaded documents."

	ChunkSeparator = "\n\n---\n\n"
)

// BuildPrompt renders the grounded-answer prompt. Output is byte-stable for
// identical inputs.
func BuildPrompt(productName, contextBlock, question string) string {
	var b strings.Builder
	b.Grow(len(contextBlock) + len(question) + 640)

	b.WriteString("You are a helpful AI assistant for the ")
	b.WriteString(productName)
	b.WriteString(" document analysis platform.\n\n")
	b.WriteString("Your task is to answer the user's question based ONLY on the context provided below.\n\n")
	b.WriteString("STRICT RULES:\n")
	b.WriteString("1. If the answer is not in the context, respond with: \"" + RefusalMessage + "\"\n")
	b.WriteString("2. Do not use any external knowledge or assumptions.\n")
	b.WriteString("3. Quote relevant parts of the context when possible.\n")
	b.WriteString("4. Be concise but complete in your answers.\n\n")
	b.WriteString("CONTEXT:\n\"\"\"\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString("USER QUESTION:\n\"\"\"\n")
	b.WriteString(question)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString("ANSWER:")
	return b.String()
}

// BuildContext joins chunk contents in retrieval order.
func BuildContext(results []domain.SimilarityResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Content)
	}
	return strings.Join(parts, ChunkSeparator)
}
