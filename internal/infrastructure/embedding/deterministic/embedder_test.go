package deterministic

import (
	"context"
	"math"
	"strings"
	"testing"
)

func embed(t *testing.T, e *Embedder, text string) []float32 {
	t.Helper()
	v, err := e.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed(%q) error = %v", text, err)
	}
	return v
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func TestEmbedIsPureAndUnitLength(t *testing.T) {
	e := NewEmbedder(0, 0)
	a := embed(t, e, "hello")
	b := embed(t, e, "hello")

	if len(a) != 1536 {
		t.Fatalf("expected 1536 dimensions, got %d", len(a))
	}
	if !equalVectors(a, b) {
		t.Fatalf("expected bit-identical vectors for identical input")
	}

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Fatalf("expected unit norm, got %f", math.Sqrt(sum))
	}
}

func TestEmbedDistinguishesTrailingSpace(t *testing.T) {
	e := NewEmbedder(0, 0)
	if equalVectors(embed(t, e, "hello"), embed(t, e, "hello ")) {
		t.Fatalf("expected different vectors for %q and %q", "hello", "hello ")
	}
}

func TestEmbedTreatsNewlineAsSpace(t *testing.T) {
	e := NewEmbedder(0, 0)
	if !equalVectors(embed(t, e, "line one\nline two"), embed(t, e, "line one line two")) {
		t.Fatalf("expected newline to be normalized to a space")
	}
}

func TestEmbedTruncatesLongInput(t *testing.T) {
	e := NewEmbedder(16, 10)
	base := strings.Repeat("x", 10)
	if !equalVectors(embed(t, e, base), embed(t, e, base+"tail that is ignored")) {
		t.Fatalf("expected input to be truncated to max chars")
	}
}

func TestSeedMatchesFNV1a(t *testing.T) {
	// FNV-1a 32-bit of "a".
	if got := seedUnits([]uint16{'a'}); got != 0xe40c292c {
		t.Fatalf("seedUnits(\"a\") = %#x, want 0xe40c292c", got)
	}
	if got := seedUnits(nil); got != fnvOffset {
		t.Fatalf("seedUnits(nil) = %#x, want offset basis", got)
	}
}

func TestEmbedTruncatesByUTF16Units(t *testing.T) {
	e := NewEmbedder(16, 3)

	// U+1F600 is two code units, so the cut at 3 keeps its leading surrogate.
	cut := embed(t, e, "ab\U0001F600c")
	if !equalVectors(cut, e.vector([]uint16{'a', 'b', 0xD83D})) {
		t.Fatalf("expected the vector of the first three UTF-16 code units")
	}
	if equalVectors(cut, embed(t, e, "ab")) {
		t.Fatalf("expected the leading surrogate to take part in the seed")
	}
	if !equalVectors(embed(t, e, "\U0001F600x"), embed(t, e, "\U0001F600xyz")) {
		t.Fatalf("expected a supplementary character to count as two units")
	}
}
