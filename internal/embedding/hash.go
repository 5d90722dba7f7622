package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/bunrui/pkg/utils"
)

// HashEmbedder is a deterministic, offline bag-of-words embedder. Each token is hashed
// into one of Dimensions buckets with a hash-derived sign, so texts sharing tokens
// point in similar directions. It needs no model files and is the default provider.
type HashEmbedder struct {
	dimensions int
	tokenize   func(string) []string
}

// HashOption configures a HashEmbedder.
type HashOption func(*HashEmbedder)

// WithTokenize replaces the default lower-case word splitter, e.g. with the corpus preprocessor.
func WithTokenize(fn func(string) []string) HashOption {
	return func(e *HashEmbedder) {
		e.tokenize = fn
	}
}

// NewHashEmbedder returns a hashing embedder of the given dimensions (384 when not positive).
func NewHashEmbedder(dimensions int, opts ...HashOption) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	e := &HashEmbedder{dimensions: dimensions, tokenize: SplitWords}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the hashed bag-of-words vector of text. Text without tokens yields a zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, tok := range e.tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum>>63 == 1 {
			emb[idx]--
		} else {
			emb[idx]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

// SplitWords lower-cases text and splits it on anything that is not a letter or digit.
func SplitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
