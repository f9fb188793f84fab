// Package mock provides a deterministic embedder for tests. Embeddings are
// generated from a hash of the text, so identical inputs always map to the
// identical unit vector and no model or network is involved.
package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

// ErrEmbedFailed is returned for texts matched by FailOn.
var ErrEmbedFailed = errors.New("mock embed failed")

// Embedder is a deterministic test embedder.
type Embedder struct {
	dims int

	// Err, when set, fails every Embed call with this error.
	Err error

	// FailOn, when non-empty, fails Embed calls whose text contains it.
	// Lets tests break one write in a multi-write flow.
	FailOn string
}

// New creates a mock embedder producing vectors of the given size.
func New(dims int) *Embedder {
	return &Embedder{dims: dims}
}

// Embed creates a deterministic unit vector from a hash of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrEmbedFailed
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	for i := range vec {
		// Linear congruential step keeps the sequence cheap and stable.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
