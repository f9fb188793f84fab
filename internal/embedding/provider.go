// Package embedding produces the unit-normalized vectors the vector index
// stores and searches. Providers are constructed lazily: the first Embed
// call builds the underlying client, and a failed build is cached so later
// calls fail fast instead of hammering a dead endpoint.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable indicates that the embedding provider could not be
// initialised. The failure is cached by the lazy cell; Reset clears it.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider generates embeddings for text.
type Provider interface {
	// Embed returns a unit-normalized vector of Dimensions() length.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding size.
	Dimensions() int
}

// Normalize scales vec to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
