package vectorize

import (
	"fmt"

	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/embedding"
)

// Strategy names a Vectorizer implementation.
type Strategy string

const (
	// StrategyTFIDF builds a sparse term-weighted vocabulary per corpus pass.
	StrategyTFIDF Strategy = "tfidf"
	// StrategyDense embeds documents with the configured embedding model.
	StrategyDense Strategy = "dense"
)

// New creates the vectorizer selected by cfg.Strategy. embedder is only used by the dense strategy.
func New(cfg config.VectorizerConfig, embedder embedding.Embedder) (Vectorizer, error) {
	switch Strategy(cfg.Strategy) {
	case StrategyTFIDF, "":
		return NewTFIDF(TFIDFOptions{
			MinDF:       cfg.MinDF,
			MaxDF:       cfg.MaxDF,
			MaxFeatures: cfg.MaxFeatures,
			Norm:        cfg.Norm,
		}), nil
	case StrategyDense:
		if embedder == nil {
			return nil, fmt.Errorf("dense vectorizer requires an embedder")
		}
		return NewDense(embedder), nil
	default:
		return nil, fmt.Errorf("unknown vectorizer strategy: %s (supported: tfidf, dense)", cfg.Strategy)
	}
}
