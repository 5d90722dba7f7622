// Package embedding provides dense text embeddings: a local hashing model, ONNX, remote HTTP, and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations return unit-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
