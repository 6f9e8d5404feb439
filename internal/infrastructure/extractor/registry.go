package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
	"github.com/kirillkom/documind/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/documind/internal/infrastructure/extractor/plaintext"
)

// Registry dispatches extraction to the extractor registered for a file type
// and rejects documents that yield no text.
type Registry struct {
	byType map[domain.FileType]ports.TextExtractor
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[domain.FileType]ports.TextExtractor)}
}

// NewDefaultRegistry wires the extractors for every accepted upload type.
func NewDefaultRegistry() *Registry {
	text := plaintext.NewExtractor()
	return NewRegistry().
		Register(domain.FileTypeText, text).
		Register(domain.FileTypeMarkdown, text).
		Register(domain.FileTypePDF, pdf.NewExtractor())
}

func (r *Registry) Register(fileType domain.FileType, ex ports.TextExtractor) *Registry {
	r.byType[fileType] = ex
	return r
}

func (r *Registry) Extract(ctx context.Context, data []byte, fileType domain.FileType) (string, error) {
	ex, ok := r.byType[fileType]
	if !ok {
		return "", fmt.Errorf("%w: no extractor for file type %q", domain.ErrInvalidInput, fileType)
	}

	text, err := ex.Extract(ctx, data, fileType)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text could be extracted from the document", domain.ErrExtraction)
	}
	return text, nil
}
