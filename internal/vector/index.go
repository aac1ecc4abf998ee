// Package vector provides the append-only vector index used for similarity search.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector or persisted index does not match
// the configured dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Index stores fixed-dimension vectors at stable ordinal positions. Vectors are never
// replaced in place; Reset is the only way to drop them.
type Index interface {
	// Add appends vector and returns its ordinal.
	Add(vector []float32) (int, error)
	// Search returns up to k hits ordered by descending score. Ordinals for which
	// skip returns true are never returned; skip may be nil.
	Search(ctx context.Context, query []float32, k int, skip func(ordinal int) bool) ([]Hit, error)
	Count() int
	Dimensions() int
	Reset()
	Save(path string) error
	Load(path string) error
	Close() error
}

// Hit is a single vector search result.
type Hit struct {
	Ordinal int
	Score   float64 // inner product; cosine similarity for normalized vectors
}
