package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/cluster"
	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/embedding"
	"github.com/hyperjump/bunrui/internal/events"
	"github.com/hyperjump/bunrui/internal/extract"
	"github.com/hyperjump/bunrui/internal/metrics"
	"github.com/hyperjump/bunrui/internal/preprocess"
	"github.com/hyperjump/bunrui/internal/search"
	"github.com/hyperjump/bunrui/internal/store"
	"github.com/hyperjump/bunrui/internal/vectorize"
)

const (
	clusterModelFile = "kmeans.bin"
	searchIndexFile  = "search.idx"
)

// Components holds initialized services.
type Components struct {
	Snapshotter store.Snapshotter
	Embedder    embedding.Embedder
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Corpus      *corpus.Service
}

// Close releases every component that holds a connection or file.
func (c *Components) Close() {
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Snapshotter != nil {
		_ = c.Snapshotter.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := os.MkdirAll(cfg.Storage.ModelDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model dir: %w", err)
	}

	snap, err := store.OpenSnapshotter(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Snapshotter: snap}
	docs := store.New(ctx, snap, store.WithLogger(logger))

	pre, err := preprocess.New(preprocess.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize preprocessor: %w", err)
	}

	c.Embedder, err = embedding.New(cfg.Embedding, pre.NormalizeOrEmpty, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vec, err := vectorize.New(cfg.Vectorizer, c.Embedder)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vectorizer: %w", err)
	}

	km := cluster.New(cluster.Options{
		MaxIterations: cfg.Clustering.MaxIterations,
		Tolerance:     cfg.Clustering.Tolerance,
		Seed:          cfg.Clustering.Seed,
		NInit:         cfg.Clustering.NInit,
	}, cluster.WithModelPath(filepath.Join(cfg.Storage.ModelDir, clusterModelFile)), cluster.WithLogger(logger))

	engine := search.NewEngine(c.Embedder,
		search.WithIndexPath(filepath.Join(cfg.Storage.ModelDir, searchIndexFile)),
		search.WithModelKey(embeddingModelKey(cfg.Embedding)),
		search.WithLogger(logger),
	)

	c.Events = events.New(cfg.Events, logger)

	if cfg.Metrics.EnabledOrDefault() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		c.Metrics = metrics.New(reg)
	}

	c.Corpus = corpus.New(corpus.Deps{
		Store:        docs,
		Preprocessor: pre,
		Vectorizer:   vec,
		Clusterer:    km,
		Search:       engine,
		Extractor:    extract.NewExtractor(),
	},
		corpus.WithLogger(logger),
		corpus.WithEvents(c.Events),
		corpus.WithMetrics(c.Metrics),
		corpus.WithUploadPolicy(cfg.Upload.AllowedExtensions, cfg.Upload.MaxFileBytes),
		corpus.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		corpus.WithSnippetLength(cfg.Search.SnippetLength),
		corpus.WithModelDir(cfg.Storage.ModelDir),
	)
	return c, nil
}

// embeddingModelKey identifies the embedding space so a persisted search
// index built with another model is discarded.
func embeddingModelKey(cfg config.EmbeddingConfig) string {
	switch embedding.Provider(cfg.Provider) {
	case embedding.ProviderONNX:
		return fmt.Sprintf("onnx:%s:%d", filepath.Base(cfg.ModelPath), cfg.Dimensions)
	case embedding.ProviderHTTP:
		return fmt.Sprintf("http:%s:%s", cfg.BaseURL, cfg.Model)
	default:
		return fmt.Sprintf("hash:%d", cfg.Dimensions)
	}
}
