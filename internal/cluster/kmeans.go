// Package cluster partitions document vectors with k-means and k-means++ seeding.
package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// Options control a k-means fit.
type Options struct {
	MaxIterations int
	Tolerance     float64 // stop once the summed squared centroid shift is at or below this
	Seed          int64
	NInit         int // independent seedings; the lowest-inertia run wins
}

// DefaultOptions returns the defaults used by the server.
func DefaultOptions() Options {
	return Options{MaxIterations: 2000, Tolerance: 1e-8, Seed: 42, NInit: 1}
}

// Model is a fitted clustering. It is immutable once returned.
// Generation is set by the caller to pair the model with the vectorizer
// fitted in the same pass.
type Model struct {
	Centroids  [][]float64
	Inertia    float64
	Iterations int
	FittedAt   time.Time
	Generation int64
}

// K returns the number of clusters.
func (m *Model) K() int { return len(m.Centroids) }

// Dimensions returns the vector dimensionality the model was fit on.
func (m *Model) Dimensions() int {
	if len(m.Centroids) == 0 {
		return 0
	}
	return len(m.Centroids[0])
}

// Nearest returns the cluster of v. v is L2-normalized first, like the fitted vectors.
func (m *Model) Nearest(v []float64) (int, error) {
	if len(v) != m.Dimensions() {
		return 0, fmt.Errorf("vector has %d dimensions, model expects %d: %w", len(v), m.Dimensions(), models.ErrInvalidInput)
	}
	p := append([]float64(nil), v...)
	utils.NormalizeL2F64(p)
	return nearest(p, m.Centroids), nil
}

// Result is the outcome of Fit.
type Result struct {
	Labels []int
	Model  *Model
}

// KMeans fits models and predicts clusters for single vectors.
// The installed model is swapped atomically; readers never see a partial model.
type KMeans struct {
	opts      Options
	modelPath string
	model     atomic.Pointer[Model]
	loadMu    sync.Mutex
	logger    *zap.Logger
}

// Option configures KMeans.
type Option func(*KMeans)

// WithModelPath persists installed models to path and lazily restores them on Predict.
func WithModelPath(path string) Option {
	return func(k *KMeans) {
		k.modelPath = path
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(k *KMeans) {
		k.logger = l
	}
}

// New returns a KMeans with no installed model.
func New(opts Options, options ...Option) *KMeans {
	d := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = d.MaxIterations
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = d.Tolerance
	}
	if opts.NInit <= 0 {
		opts.NInit = d.NInit
	}
	k := &KMeans{opts: opts}
	for _, o := range options {
		o(k)
	}
	k.logger = utils.OrNop(k.logger)
	return k
}

// Cluster fits vectors into k groups and installs the resulting model.
func (km *KMeans) Cluster(ctx context.Context, vectors [][]float64, k int) (*Result, error) {
	res, err := km.Fit(ctx, vectors, k)
	if err != nil {
		return nil, err
	}
	if err := km.Persist(res.Model); err != nil {
		km.logger.Warn("cluster model not persisted", zap.Error(err))
	}
	km.Install(res.Model)
	return res, nil
}

// Fit computes a clustering without installing it. Vectors are L2-normalized first.
// Labels are numbered by first appearance in input order, so label 0 is the cluster of vectors[0].
func (km *KMeans) Fit(ctx context.Context, vectors [][]float64, k int) (*Result, error) {
	n := len(vectors)
	if n == 0 {
		return nil, fmt.Errorf("kmeans: %w", models.ErrNoDocumentsAvailable)
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("kmeans: k=%d with %d vectors: %w", k, n, models.ErrInvalidClusterCount)
	}
	dims := len(vectors[0])
	points := make([][]float64, n)
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("kmeans: vector %d has %d dimensions, want %d: %w", i, len(v), dims, models.ErrInvalidInput)
		}
		points[i] = append([]float64(nil), v...)
		utils.NormalizeL2F64(points[i])
	}

	var best *run
	for r := 0; r < km.opts.NInit; r++ {
		rng := rand.New(rand.NewSource(km.opts.Seed + int64(r)))
		cur, err := km.lloyd(ctx, points, seedPlusPlus(points, k, rng))
		if err != nil {
			return nil, err
		}
		if best == nil || cur.inertia < best.inertia {
			best = cur
		}
	}

	labels, centroids := canonicalize(best.labels, best.centroids)
	return &Result{
		Labels: labels,
		Model: &Model{
			Centroids:  centroids,
			Inertia:    best.inertia,
			Iterations: best.iterations,
			FittedAt:   time.Now().UTC(),
		},
	}, nil
}

type run struct {
	labels     []int
	centroids  [][]float64
	inertia    float64
	iterations int
}

func (km *KMeans) lloyd(ctx context.Context, points, centroids [][]float64) (*run, error) {
	k := len(centroids)
	labels := make([]int, len(points))
	iter := 0
	for iter < km.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++
		assign(points, centroids, labels)
		repairEmpty(points, centroids, labels, k)
		next := means(points, labels, k)
		var shift float64
		for c := range centroids {
			shift += utils.SquaredDistance(centroids[c], next[c])
		}
		centroids = next
		if shift <= km.opts.Tolerance {
			break
		}
	}
	assign(points, centroids, labels)
	repairEmpty(points, centroids, labels, k)
	centroids = means(points, labels, k)

	var inertia float64
	for i, p := range points {
		inertia += utils.SquaredDistance(p, centroids[labels[i]])
	}
	return &run{labels: labels, centroids: centroids, inertia: inertia, iterations: iter}, nil
}

// seedPlusPlus picks k initial centroids, each new one sampled with probability
// proportional to its squared distance from the nearest centroid chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), points[rng.Intn(n)]...))

	minDistances := make([]float64, n)
	for i, p := range points {
		minDistances[i] = utils.SquaredDistance(p, centroids[0])
	}
	for len(centroids) < k {
		total := 0.0
		for _, d := range minDistances {
			total += d
		}
		target := rng.Float64() * total
		cum := 0.0
		selected := n - 1
		for i, d := range minDistances {
			cum += d
			if cum >= target && d > 0 {
				selected = i
				break
			}
		}
		c := append([]float64(nil), points[selected]...)
		centroids = append(centroids, c)
		for i, p := range points {
			if d := utils.SquaredDistance(p, c); d < minDistances[i] {
				minDistances[i] = d
			}
		}
	}
	return centroids
}

// assign labels each point with its nearest centroid; ties go to the lowest index.
func assign(points, centroids [][]float64, labels []int) {
	for i, p := range points {
		labels[i] = nearest(p, centroids)
	}
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := utils.SquaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// repairEmpty gives every empty cluster the point farthest from its own centroid,
// taken from a cluster that keeps at least one member.
func repairEmpty(points, centroids [][]float64, labels []int, k int) {
	counts := make([]int, k)
	for _, l := range labels {
		counts[l]++
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := utils.SquaredDistance(p, centroids[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			return
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c]++
		centroids[c] = append([]float64(nil), points[far]...)
	}
}

func means(points [][]float64, labels []int, k int) [][]float64 {
	dims := len(points[0])
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	counts := make([]int, k)
	for i, p := range points {
		l := labels[i]
		counts[l]++
		for d, x := range p {
			sums[l][d] += x
		}
	}
	for c := range sums {
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
	}
	return sums
}

// canonicalize renumbers clusters in order of first appearance and permutes centroids to match.
func canonicalize(labels []int, centroids [][]float64) ([]int, [][]float64) {
	remap := make(map[int]int, len(centroids))
	out := make([]int, len(labels))
	ordered := make([][]float64, 0, len(centroids))
	for i, l := range labels {
		nl, ok := remap[l]
		if !ok {
			nl = len(remap)
			remap[l] = nl
			ordered = append(ordered, centroids[l])
		}
		out[i] = nl
	}
	for c := range centroids {
		if _, ok := remap[c]; !ok {
			remap[c] = len(ordered)
			ordered = append(ordered, centroids[c])
		}
	}
	return out, ordered
}

// Persist writes m to the model path, if one is configured, without installing it.
func (km *KMeans) Persist(m *Model) error {
	if km.modelPath == "" {
		return nil
	}
	return SaveModel(km.modelPath, m)
}

// Install makes m the model used by Predict.
func (km *KMeans) Install(m *Model) {
	km.model.Store(m)
}

// Model returns the installed model, restoring it from disk if needed. It returns nil when none exists.
func (km *KMeans) Model() *Model {
	m, _ := km.current()
	return m
}

func (km *KMeans) current() (*Model, error) {
	if m := km.model.Load(); m != nil {
		return m, nil
	}
	if km.modelPath == "" {
		return nil, models.ErrModelNotFit
	}
	km.loadMu.Lock()
	defer km.loadMu.Unlock()
	if m := km.model.Load(); m != nil {
		return m, nil
	}
	m, err := LoadModel(km.modelPath)
	if err != nil {
		km.logger.Debug("no persisted cluster model", zap.String("path", km.modelPath), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrModelNotFit, err)
	}
	km.model.CompareAndSwap(nil, m)
	return km.model.Load(), nil
}

// Predict returns the cluster of v under the installed model.
func (km *KMeans) Predict(ctx context.Context, v []float64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m, err := km.current()
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	label, err := m.Nearest(v)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return label, nil
}

// Reset drops the installed model and its persisted copy.
func (km *KMeans) Reset() error {
	km.loadMu.Lock()
	defer km.loadMu.Unlock()
	km.model.Store(nil)
	if km.modelPath == "" {
		return nil
	}
	return RemoveModel(km.modelPath)
}
