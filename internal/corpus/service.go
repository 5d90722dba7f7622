// Package corpus runs the document pipeline: ingest, vectorization,
// clustering and semantic search over the document store.
package corpus

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/cluster"
	"github.com/hyperjump/bunrui/internal/events"
	"github.com/hyperjump/bunrui/internal/extract"
	"github.com/hyperjump/bunrui/internal/metrics"
	"github.com/hyperjump/bunrui/internal/preprocess"
	"github.com/hyperjump/bunrui/internal/search"
	"github.com/hyperjump/bunrui/internal/store"
	"github.com/hyperjump/bunrui/internal/vectorize"
	"github.com/hyperjump/bunrui/pkg/utils"
)

const vectorizerStateFile = "vectorizer.json"

// Deps are the components the service composes. All are required.
type Deps struct {
	Store        *store.Store
	Preprocessor *preprocess.Preprocessor
	Vectorizer   vectorize.Vectorizer
	Clusterer    *cluster.KMeans
	Search       *search.Engine
	Extractor    *extract.Extractor
}

// Service owns no document state of its own; every result is written back
// to the store. Corpus-wide passes (vectorize, cluster, clear) are serialized
// by passMu, while reads and single-document operations run concurrently.
// The installed vectorizer and cluster model form a pair: both are swapped
// under modelMu, and generation must match the cluster model's for predict.
type Service struct {
	store     *store.Store
	pre       *preprocess.Preprocessor
	vec       vectorize.Vectorizer
	km        *cluster.KMeans
	search    *search.Engine
	extractor *extract.Extractor

	events  events.Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger

	allowed      map[string]bool
	maxFileBytes int64
	snippetLen   int
	defaultLimit int
	maxLimit     int
	modelDir     string

	passMu     sync.Mutex
	modelMu    sync.RWMutex
	generation int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithEvents publishes corpus changes to p.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUploadPolicy restricts ingest to the given extensions and file size (0 = unlimited).
func WithUploadPolicy(extensions []string, maxFileBytes int64) Option {
	return func(s *Service) {
		s.allowed = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.allowed[ext] = true
		}
		s.maxFileBytes = maxFileBytes
	}
}

// WithSearchLimits sets the default and maximum number of search results.
func WithSearchLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// WithSnippetLength sets the snippet size used in listings and search hits.
func WithSnippetLength(n int) Option {
	return func(s *Service) {
		s.snippetLen = n
	}
}

// WithModelDir persists the fitted vectorizer next to the cluster model and restores it.
func WithModelDir(dir string) Option {
	return func(s *Service) {
		s.modelDir = dir
	}
}

// New creates the service and restores the persisted vectorizer when present.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		store:        deps.Store,
		pre:          deps.Preprocessor,
		vec:          deps.Vectorizer,
		km:           deps.Clusterer,
		search:       deps.Search,
		extractor:    deps.Extractor,
		events:       events.NopPublisher{},
		snippetLen:   200,
		defaultLimit: 10,
		maxLimit:     100,
	}
	WithUploadPolicy([]string{".pdf", ".docx", ".txt"}, 0)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	if s.extractor == nil {
		s.extractor = extract.NewExtractor()
	}
	if path := s.vectorizerStatePath(); path != "" {
		if gen, err := vectorize.LoadState(path, s.vec); err == nil {
			s.generation = gen
			s.logger.Info("vectorizer restored", zap.String("strategy", s.vec.Name()), zap.Int64("generation", gen))
		} else {
			s.logger.Debug("no persisted vectorizer", zap.Error(err))
		}
	}
	s.metrics.SetCorpusSize(s.store.Len())
	return s
}

func (s *Service) vectorizerStatePath() string {
	if s.modelDir == "" {
		return ""
	}
	return filepath.Join(s.modelDir, vectorizerStateFile)
}

func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), evs...); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err))
	}
}
