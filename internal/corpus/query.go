package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/events"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/internal/search"
	"github.com/hyperjump/bunrui/internal/store"
)

// SearchHit is one ranked search result.
type SearchHit struct {
	DocID      string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

// Search refreshes the embedding table from the current corpus and ranks it
// against query. topK of 0 uses the default limit.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	start := time.Now()
	q, k, err := search.ProcessQuery(query, topK, s.defaultLimit, s.maxLimit)
	if err != nil {
		return nil, err
	}
	docs := s.store.List()
	if len(docs) == 0 {
		return nil, fmt.Errorf("search: %w", models.ErrNoDocumentsAvailable)
	}
	if err := s.search.Refresh(ctx, docs); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results, err := s.search.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	byID := make(map[string]*models.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		d, ok := byID[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{
			DocID:      d.ID,
			Filename:   d.Filename,
			Snippet:    search.Snippet(d.RawText, s.snippetLen),
			Similarity: r.Score,
		})
	}
	s.metrics.Searched(time.Since(start), len(hits))
	return hits, nil
}

// Get returns the detail view of a document.
func (s *Service) Get(id string) (*models.DocumentView, error) {
	d, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return d.View(), nil
}

// List returns a summary of every document in insertion order.
func (s *Service) List() []models.DocumentSummary {
	docs := s.store.List()
	out := make([]models.DocumentSummary, len(docs))
	for i, d := range docs {
		out[i] = store.Summary(d, 0)
	}
	return out
}

// ClusterContents groups clustered documents by label.
func (s *Service) ClusterContents() map[int][]models.DocumentSummary {
	return s.store.GroupByCluster(s.snippetLen)
}

// Update applies loosely typed field changes (decoded JSON) to one document.
// Unknown and immutable fields are rejected before the store is touched.
func (s *Service) Update(ctx context.Context, id string, fields map[string]interface{}) (*models.DocumentView, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", models.ErrInvalidInput)
	}
	patch, err := models.PatchFromFields(fields)
	if err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete removes a document from the store and the search table. Other
// documents keep their vectors and labels until the next corpus pass.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.search.Remove(ctx, id); err != nil {
		s.logger.Warn("search index removal failed", zap.String("id", id), zap.Error(err))
	}
	s.metrics.SetCorpusSize(s.store.Len())
	s.publish(ctx, events.Event{Type: events.DocumentDeleted, DocumentID: id, Time: time.Now().UTC()})
	return nil
}

// Clear removes every document and drops the fitted models.
func (s *Service) Clear(ctx context.Context) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.modelMu.Lock()
	s.vec.Reset()
	err := s.km.Reset()
	s.generation = 0
	s.modelMu.Unlock()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("cluster model removal failed", zap.Error(err))
	}
	if path := s.vectorizerStatePath(); path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("vectorizer state removal failed", zap.Error(err))
		}
	}
	if err := s.search.Refresh(ctx, nil); err != nil {
		s.logger.Warn("search index reset failed", zap.Error(err))
	}
	s.metrics.SetCorpusSize(0)
	s.publish(ctx, events.Event{Type: events.CorpusCleared, Time: time.Now().UTC()})
	return nil
}

// ModelStatus describes the installed cluster model.
type ModelStatus struct {
	Clusters   int       `json:"clusters"`
	Dimensions int       `json:"dimensions"`
	Inertia    float64   `json:"inertia"`
	Iterations int       `json:"iterations"`
	FittedAt   time.Time `json:"fitted_at"`
}

// Status summarizes the corpus and the fitted models.
type Status struct {
	Documents        int                  `json:"documents"`
	Stages           map[models.Stage]int `json:"stages"`
	Vectorizer       string               `json:"vectorizer"`
	VectorizerFitted bool                 `json:"vectorizer_fitted"`
	ClusterModel     *ModelStatus         `json:"cluster_model"`
	SearchIndexSize  int                  `json:"search_index_size"`
	DiskUsageBytes   int64                `json:"disk_usage_bytes"`
}

// Status reports document counts per stage, model state and disk usage.
func (s *Service) Status() *Status {
	docs := s.store.List()
	st := &Status{
		Documents:        len(docs),
		Stages:           make(map[models.Stage]int),
		Vectorizer:       s.vec.Name(),
		VectorizerFitted: s.vec.Fitted(),
		SearchIndexSize:  s.search.Size(),
	}
	for _, d := range docs {
		st.Stages[d.Stage()]++
	}
	if m := s.km.Model(); m != nil {
		st.ClusterModel = &ModelStatus{
			Clusters:   m.K(),
			Dimensions: m.Dimensions(),
			Inertia:    m.Inertia,
			Iterations: m.Iterations,
			FittedAt:   m.FittedAt,
		}
	}
	paths := append(s.store.Paths(), s.modelDir)
	if n, err := store.DiskUsageBytes(paths...); err == nil {
		st.DiskUsageBytes = n
	} else {
		s.logger.Warn("disk usage unavailable", zap.Error(err))
	}
	return st
}
