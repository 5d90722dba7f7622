package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// Store holds one record per document. Mutations are serialized and each one
// is persisted through the Snapshotter before it becomes visible; a failed
// save leaves the in-memory state untouched. Stored records are never
// modified in place, and readers receive copies.
type Store struct {
	mu      sync.RWMutex
	docs    map[string]*models.Document
	nextSeq uint64
	version uint64

	snap   Snapshotter
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the upload timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New restores the store from snap. A missing or unreadable snapshot yields
// an empty store; the failure is logged, not returned.
func New(ctx context.Context, snap Snapshotter, opts ...Option) *Store {
	if snap == nil {
		snap = MemorySnapshotter{}
	}
	s := &Store{
		docs:  make(map[string]*models.Document),
		snap:  snap,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)

	docs, err := snap.Load(ctx)
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting with an empty store", zap.Error(err))
		return s
	}
	for _, d := range docs {
		if d == nil || d.ID == "" {
			continue
		}
		s.docs[d.ID] = d
		if d.Seq >= s.nextSeq {
			s.nextSeq = d.Seq + 1
		}
	}
	s.logger.Info("document store restored", zap.Int("documents", len(s.docs)))
	return s
}

// NewDocument is the input of Create.
type NewDocument struct {
	Filename         string
	FileType         string
	RawText          string
	PreprocessedText *string
}

// Create stores a new document and returns its copy with the assigned id.
func (s *Store) Create(ctx context.Context, filename, fileType, rawText string) (*models.Document, error) {
	docs, err := s.CreateBatch(ctx, []NewDocument{{Filename: filename, FileType: fileType, RawText: rawText}})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// CreateBatch stores several documents under one snapshot, in input order.
func (s *Store) CreateBatch(ctx context.Context, in []NewDocument) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyDocs()
	seq := s.nextSeq
	created := make([]*models.Document, 0, len(in))
	for _, nd := range in {
		d := &models.Document{
			ID:         s.newID(),
			Filename:   nd.Filename,
			FileType:   nd.FileType,
			RawText:    nd.RawText,
			Seq:        seq,
			UploadedAt: s.now().UTC(),
		}
		if nd.PreprocessedText != nil {
			pre := *nd.PreprocessedText
			d.PreprocessedText = &pre
		}
		seq++
		next[d.ID] = d
		created = append(created, d.Clone())
	}
	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}
	s.nextSeq = seq
	return created, nil
}

// Get returns a copy of the document with id.
func (s *Store) Get(id string) (*models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns copies of all documents in insertion order.
func (s *Store) List() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Document, 0, len(s.docs))
	for _, d := range s.ordered() {
		out = append(out, d.Clone())
	}
	return out
}

// Len returns the number of documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Version increases with every committed mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Update applies patch to the document with id.
func (s *Store) Update(ctx context.Context, id string, patch models.DocumentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	next := s.copyDocs()
	d := cur.Clone()
	patch.Apply(d)
	next[id] = d
	return s.commit(ctx, next)
}

// ApplyBatch applies all patches under one snapshot. Patches for documents
// deleted since the caller read the corpus are dropped; the ids that were
// patched are returned.
func (s *Store) ApplyBatch(ctx context.Context, patches map[string]models.DocumentPatch) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.copyDocs()
	applied := make(map[string]bool, len(patches))
	for id, patch := range patches {
		cur, ok := next[id]
		if !ok {
			continue
		}
		d := cur.Clone()
		patch.Apply(d)
		next[id] = d
		applied[id] = true
	}
	if len(applied) == 0 {
		return applied, nil
	}
	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}
	return applied, nil
}

// Delete removes the document with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	next := s.copyDocs()
	delete(next, id)
	return s.commit(ctx, next)
}

// Clear removes every document.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, make(map[string]*models.Document))
}

// GroupByCluster maps each cluster label to the summaries of its members in
// insertion order. Unclustered documents are omitted.
func (s *Store) GroupByCluster(snippetLen int) map[int][]models.DocumentSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make(map[int][]models.DocumentSummary)
	for _, d := range s.ordered() {
		if d.Cluster == nil {
			continue
		}
		groups[*d.Cluster] = append(groups[*d.Cluster], Summary(d, snippetLen))
	}
	return groups
}

// Summary builds the listing view of d.
func Summary(d *models.Document, snippetLen int) models.DocumentSummary {
	sum := models.DocumentSummary{ID: d.ID, Filename: d.Filename, Status: d.Stage()}
	if snippetLen > 0 {
		sum.Snippet = utils.Snippet(d.RawText, snippetLen)
	}
	return sum
}

// Paths lists the files backing the snapshot.
func (s *Store) Paths() []string {
	return s.snap.Paths()
}

// Close releases the snapshot backend.
func (s *Store) Close() error {
	return s.snap.Close()
}

// commit persists next and installs it. Callers hold the write lock.
func (s *Store) commit(ctx context.Context, next map[string]*models.Document) error {
	if err := s.snap.Save(ctx, orderedOf(next)); err != nil {
		s.logger.Error("snapshot save failed", zap.Error(err))
		return fmt.Errorf("%w: %w", models.ErrPersistenceFailure, err)
	}
	s.docs = next
	s.version++
	return nil
}

func (s *Store) copyDocs() map[string]*models.Document {
	next := make(map[string]*models.Document, len(s.docs)+1)
	for id, d := range s.docs {
		next[id] = d
	}
	return next
}

func (s *Store) ordered() []*models.Document {
	return orderedOf(s.docs)
}

func orderedOf(docs map[string]*models.Document) []*models.Document {
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out
}
