package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/documind/internal/core/domain"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 200
)

// Splitter cuts normalized text into fixed-size windows that overlap by
// Overlap runes. Window starts advance by ChunkSize-Overlap until they pass
// the end of the text.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidInput, chunkSize, overlap)
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

// Normalize collapses every whitespace run into one space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}
