// Package search ranks documents against free-text queries by embedding similarity.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/embedding"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/internal/vector"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// Engine owns the document embedding table. Refresh rebuilds it from a corpus
// snapshot; Search embeds the query with the same embedder and ranks the table.
type Engine struct {
	embedder  embedding.Embedder
	index     vector.Index
	indexPath string
	modelKey  string
	logger    *zap.Logger
	refreshMu sync.Mutex
	mu        sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndexPath persists the table after each rebuild and restores it on start.
func WithIndexPath(path string) Option {
	return func(e *Engine) {
		e.indexPath = path
	}
}

// WithModelKey names the embedding model so a persisted table from another model is never reused.
func WithModelKey(key string) Option {
	return func(e *Engine) {
		e.modelKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a search engine over embedder.
func NewEngine(embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	if dims := embedder.Dimensions(); dims > 0 {
		idx, _ := vector.NewMemoryIndex(dims)
		e.index = idx
		if err := idx.Load(e.indexPath); err != nil {
			e.logger.Warn("discarding persisted search index", zap.String("path", e.indexPath), zap.Error(err))
		}
	}
	return e
}

// Fingerprint hashes the searchable text of docs (ordered by id) with the model key.
func (e *Engine) Fingerprint(docs []*models.Document) string {
	sorted := append([]*models.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	h := sha256.New()
	h.Write([]byte(e.modelKey))
	for _, d := range sorted {
		text := d.SearchText()
		if text == "" {
			continue
		}
		fmt.Fprintf(h, "\x00%s\x00%d:%s", d.ID, len(text), text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Refresh rebuilds the embedding table from docs. Documents without text are skipped.
// When the corpus is unchanged since the last rebuild the table is kept as is,
// which is observably identical to rebuilding with a deterministic embedder.
func (e *Engine) Refresh(ctx context.Context, docs []*models.Document) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	fp := e.Fingerprint(docs)
	if idx := e.table(); idx != nil && idx.Fingerprint() == fp {
		return nil
	}

	ids := make([]string, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := d.SearchText(); text != "" {
			ids = append(ids, d.ID)
			texts = append(texts, text)
		}
	}
	var embs [][]float32
	if len(texts) > 0 {
		var err error
		embs, err = e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed corpus: %w", err)
		}
	}

	idx := e.table()
	if idx == nil {
		dims := e.embedder.Dimensions()
		if len(embs) > 0 {
			dims = len(embs[0])
		}
		if dims <= 0 {
			return nil
		}
		mi, err := vector.NewMemoryIndex(dims)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.index = mi
		e.mu.Unlock()
		idx = mi
	}
	if err := idx.Replace(ctx, ids, embs, fp); err != nil {
		return fmt.Errorf("replace search index: %w", err)
	}
	if err := idx.Save(e.indexPath); err != nil {
		e.logger.Warn("search index not persisted", zap.Error(err))
	}
	e.logger.Debug("search index rebuilt", zap.Int("documents", len(ids)))
	return nil
}

// Search returns up to topK document ids by descending cosine similarity to query.
// An empty table yields an empty result.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]*vector.Result, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be positive: %w", models.ErrInvalidInput)
	}
	idx := e.table()
	if idx == nil || idx.Size() == 0 {
		return []*vector.Result{}, nil
	}
	q, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return idx.Search(ctx, q, topK)
}

// Remove drops a document from the table.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if idx := e.table(); idx != nil {
		return idx.Remove(ctx, []string{id})
	}
	return nil
}

// Size returns the number of embedded documents.
func (e *Engine) Size() int {
	if idx := e.table(); idx != nil {
		return idx.Size()
	}
	return 0
}

func (e *Engine) table() vector.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}
