// Package vector holds the document embedding table used for similarity search.
package vector

import "context"

// Index stores one dense vector per document id and ranks them against a query.
type Index interface {
	Replace(ctx context.Context, ids []string, vectors [][]float32, fingerprint string) error
	Remove(ctx context.Context, ids []string) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Fingerprint() string
	Size() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Result is a single similarity hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
