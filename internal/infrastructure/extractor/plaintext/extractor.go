package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/documind/internal/core/domain"
)

// Extractor decodes txt and md uploads as UTF-8. Each byte that is not part
// of a valid sequence becomes U+FFFD, so a stray Latin-1 byte does not fail
// the document.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, data []byte, _ domain.FileType) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	var b strings.Builder
	b.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		b.WriteRune(r)
		data = data[size:]
	}
	return b.String(), nil
}
