package vectorize

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/bunrui/internal/embedding"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// Dense delegates vectorization to an embedding model. It keeps no vocabulary;
// the fitted flag only records that a corpus pass has completed.
type Dense struct {
	embedder embedding.Embedder
	fitted   atomic.Bool
}

// NewDense wraps embedder.
func NewDense(embedder embedding.Embedder) *Dense {
	return &Dense{embedder: embedder}
}

// Name returns "dense".
func (d *Dense) Name() string { return "dense" }

// Fitted reports whether FitTransform has completed at least once.
func (d *Dense) Fitted() bool { return d.fitted.Load() }

// Reset marks the vectorizer as unfitted.
func (d *Dense) Reset() { d.fitted.Store(false) }

// FitTransform embeds every document in one batch.
func (d *Dense) FitTransform(ctx context.Context, corpus []string) ([][]float64, error) {
	return fitTransform(ctx, d, corpus)
}

// Fit embeds the corpus; Install marks the vectorizer as fitted.
func (d *Dense) Fit(ctx context.Context, corpus []string) (*Fitting, error) {
	if len(corpus) == 0 {
		return nil, fmt.Errorf("dense fit: %w", models.ErrNoDocumentsAvailable)
	}
	embs, err := d.embedder.EmbedBatch(ctx, corpus)
	if err != nil {
		return nil, fmt.Errorf("dense fit: %w", err)
	}
	out := make([][]float64, len(embs))
	for i, e := range embs {
		out[i] = utils.ToFloat64(e)
	}
	return &Fitting{
		Vectors: out,
		install: func() { d.fitted.Store(true) },
		state:   fittedState{Strategy: d.Name()},
	}, nil
}

// Transform embeds a single text.
func (d *Dense) Transform(ctx context.Context, text string) ([]float64, error) {
	if !d.fitted.Load() {
		return nil, fmt.Errorf("dense transform: %w", models.ErrModelNotFit)
	}
	e, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("dense transform: %w", err)
	}
	return utils.ToFloat64(e), nil
}
