// Package deterministic provides an offline embedding provider: vectors are a
// pure function of the input text, so identical text always maps to the same
// unit vector. They carry no semantic meaning.
package deterministic

import (
	"context"
	"math"

	"github.com/kirillkom/documind/internal/infrastructure/embedding"
)

const (
	fnvOffset = 2166136261
	fnvPrime  = 16777619
)

type Embedder struct {
	dimension int
	maxChars  int
}

func NewEmbedder(dimension, maxChars int) *Embedder {
	if dimension <= 0 {
		dimension = embedding.DefaultDimension
	}
	if maxChars <= 0 {
		maxChars = embedding.DefaultMaxChars
	}
	return &Embedder{dimension: dimension, maxChars: maxChars}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vector(embedding.NormalizeInputUnits(text, e.maxChars)), nil
}

func (e *Embedder) vector(units []uint16) []float32 {
	next := mulberry32(seedUnits(units))

	raw := make([]float64, e.dimension)
	var sumSquares float64
	for i := range raw {
		v := next()*2 - 1
		raw[i] = v
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, e.dimension)
	for i, v := range raw {
		out[i] = float32(v / norm)
	}
	return out
}

// seedUnits is 32-bit FNV-1a over UTF-16 code units.
func seedUnits(units []uint16) uint32 {
	h := uint32(fnvOffset)
	for _, unit := range units {
		h ^= uint32(unit)
		h *= fnvPrime
	}
	return h
}

// mulberry32 returns a generator of floats in [0, 1).
func mulberry32(state uint32) func() float64 {
	return func() float64 {
		state += 0x6d2b79f5
		t := state
		t = (t ^ (t >> 15)) * (t | 1)
		t ^= t + (t^(t>>7))*(t|61)
		return float64(t^(t>>14)) / 4294967296
	}
}
