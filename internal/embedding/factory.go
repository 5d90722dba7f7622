package embedding

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/config"
)

// Provider names an Embedder implementation.
type Provider string

const (
	// ProviderHash is the offline feature-hashing embedder.
	ProviderHash Provider = "hash"
	// ProviderONNX runs a local sentence-embedding model. Requires cgo.
	ProviderONNX Provider = "onnx"
	// ProviderHTTP calls an OpenAI-compatible embeddings endpoint.
	ProviderHTTP Provider = "http"
)

// New builds the embedder selected by cfg.Provider and wraps it with the configured cache.
// tokenize is used by the hash provider; nil selects SplitWords.
func New(cfg config.EmbeddingConfig, tokenize func(string) []string, logger *zap.Logger) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch Provider(cfg.Provider) {
	case ProviderHash, "":
		var opts []HashOption
		if tokenize != nil {
			opts = append(opts, WithTokenize(tokenize))
		}
		inner = NewHashEmbedder(cfg.Dimensions, opts...)
	case ProviderONNX:
		inner, err = NewONNXEmbedder(cfg.ModelPath, cfg.OutputName, cfg.Dimensions, cfg.MaxTokens, logger)
	case ProviderHTTP:
		inner, err = NewHTTPEmbedder(HTTPConfig{
			BaseURL:           cfg.BaseURL,
			APIKey:            os.Getenv(cfg.APIKeyEnv),
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Concurrency:       cfg.BatchConcurrency,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hash, onnx, http)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}

	switch cfg.Cache {
	case "none", "":
		return inner, nil
	case "memory":
		return NewCachedEmbedder(inner, NewLRUCache(cfg.CacheSize)), nil
	case "redis":
		prefix := fmt.Sprintf("bunrui:emb:%s:%s:%d:", cfg.Provider, cfg.Model, cfg.Dimensions)
		rc, err := NewRedisCache(cfg.RedisAddr, prefix, 0, logger)
		if err != nil {
			_ = inner.Close()
			return nil, err
		}
		return NewCachedEmbedder(inner, rc), nil
	default:
		_ = inner.Close()
		return nil, fmt.Errorf("unknown embedding cache: %s (supported: memory, redis, none)", cfg.Cache)
	}
}
