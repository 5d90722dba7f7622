package corpus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/cluster"
	"github.com/hyperjump/bunrui/internal/events"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/internal/preprocess"
)

// ClusterSummary describes a completed clustering pass.
type ClusterSummary struct {
	NumDocuments        int         `json:"num_documents"`
	NumClusters         int         `json:"num_clusters"`
	ClusterDistribution map[int]int `json:"cluster_distribution"`
	Inertia             float64     `json:"inertia"`
	Iterations          int         `json:"iterations"`
}

// Cluster re-vectorizes the whole corpus, partitions it into k clusters and
// commits every vector and label in one store update. Models are installed
// only after the commit succeeds, so a failed or cancelled pass changes nothing.
func (s *Service) Cluster(ctx context.Context, k int) (summary *ClusterSummary, err error) {
	start := time.Now()
	defer func() { s.metrics.ClusterRun(time.Since(start), err) }()

	s.passMu.Lock()
	defer s.passMu.Unlock()

	docs := s.store.List()
	if len(docs) == 0 {
		return nil, fmt.Errorf("cluster: %w", models.ErrNoDocumentsAvailable)
	}
	if k < 1 || k > len(docs) {
		return nil, fmt.Errorf("cluster: k=%d with %d documents: %w", k, len(docs), models.ErrInvalidClusterCount)
	}

	texts, patches := s.corpusTexts(docs)
	fitting, err := s.vec.Fit(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	res, err := s.km.Fit(ctx, fitting.Vectors, k)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, d := range docs {
		label := res.Labels[i]
		p := patches[d.ID]
		p.Vector = fitting.Vectors[i]
		p.Cluster = &label
		patches[d.ID] = p
	}
	applied, err := s.store.ApplyBatch(ctx, patches)
	if err != nil {
		return nil, err
	}
	dist := make(map[int]int, k)
	for i, d := range docs {
		if applied[d.ID] {
			dist[res.Labels[i]]++
		}
	}

	gen := time.Now().UnixNano()
	if gen <= s.generation {
		gen = s.generation + 1
	}
	res.Model.Generation = gen
	if path := s.vectorizerStatePath(); path != "" {
		if err := fitting.Save(path, gen); err != nil {
			s.logger.Warn("vectorizer not persisted", zap.Error(err))
		}
	}
	if err := s.km.Persist(res.Model); err != nil {
		s.logger.Warn("cluster model not persisted", zap.Error(err))
	}
	s.modelMu.Lock()
	fitting.Install()
	s.km.Install(res.Model)
	s.generation = gen
	s.modelMu.Unlock()

	summary = &ClusterSummary{
		NumDocuments:        len(applied),
		NumClusters:         k,
		ClusterDistribution: dist,
		Inertia:             res.Model.Inertia,
		Iterations:          res.Model.Iterations,
	}
	s.publish(ctx, events.Event{
		Type: events.CorpusClustered,
		Time: time.Now().UTC(),
		Data: map[string]any{"num_documents": len(applied), "num_clusters": k, "cluster_distribution": stringKeys(dist)},
	})
	s.logger.Info("corpus clustered",
		zap.Int("documents", len(applied)),
		zap.Int("clusters", k),
		zap.Int("iterations", res.Model.Iterations),
		zap.Duration("took", time.Since(start)))
	return summary, nil
}

// PredictCluster assigns text to a cluster of the installed model. A cluster
// model restored from disk is only used when it was fitted in the same pass
// as the installed vectorizer.
func (s *Service) PredictCluster(ctx context.Context, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("text is required: %w", models.ErrInvalidInput)
	}
	pre := preprocess.TokensToString(s.pre.NormalizeOrEmpty(text))

	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	m := s.km.Model()
	if m == nil {
		return 0, fmt.Errorf("predict: %w", models.ErrModelNotFit)
	}
	if m.Generation != s.generation {
		return 0, fmt.Errorf("predict: cluster model and vectorizer are from different passes: %w", models.ErrModelNotFit)
	}
	v, err := s.vec.Transform(ctx, pre)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	label, err := m.Nearest(v)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return label, nil
}

// ProjectedPoint is one document placed on the 2D projection.
type ProjectedPoint struct {
	DocID    string  `json:"doc_id"`
	Filename string  `json:"filename"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Cluster  *int    `json:"cluster"`
}

// Projection projects the stored document vectors onto their two principal
// components. Documents without a vector are left out.
func (s *Service) Projection(ctx context.Context) ([]ProjectedPoint, error) {
	docs := s.store.List()
	if len(docs) == 0 {
		return nil, fmt.Errorf("projection: %w", models.ErrNoDocumentsAvailable)
	}
	var (
		vectors [][]float64
		kept    []*models.Document
	)
	for _, d := range docs {
		if d.Vector == nil || (len(vectors) > 0 && len(d.Vector) != len(vectors[0])) {
			continue
		}
		vectors = append(vectors, d.Vector)
		kept = append(kept, d)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("projection: no vectorized documents: %w", models.ErrModelNotFit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coords := cluster.Project2D(vectors)
	points := make([]ProjectedPoint, len(kept))
	for i, d := range kept {
		points[i] = ProjectedPoint{DocID: d.ID, Filename: d.Filename, X: coords[i][0], Y: coords[i][1], Cluster: d.Cluster}
	}
	return points, nil
}

func stringKeys(m map[int]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}
