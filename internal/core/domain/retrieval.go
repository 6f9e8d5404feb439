package domain

type SimilarityResult struct {
	Chunk DocumentChunk
	Score float64
}

type RetrievedChunk struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type Source struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	FileURL string `json:"file_url"`
}

type Answer struct {
	Text    string           `json:"answer"`
	Chunks  []RetrievedChunk `json:"chunks"`
	Sources []Source         `json:"sources"`
}

// GenerationParams are the fixed sampling parameters sent with every generation call.
type GenerationParams struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// StreamEvent is one item of a streamed answer. Exactly one of Text, Err or
// Done is meaningful; Err and Done events are always the last in a stream.
// A Done event carries the sources and the number of retrieved chunks.
type StreamEvent struct {
	Text       string
	Err        error
	Done       bool
	Sources    []Source
	ChunkCount int
}
