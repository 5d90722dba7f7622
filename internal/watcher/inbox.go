package watcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/models"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// Corpus is the part of the corpus service the inbox drives.
type Corpus interface {
	Ingest(ctx context.Context, uploads []corpus.Upload) ([]corpus.UploadResult, error)
	Delete(ctx context.Context, id string) error
}

type inboxEntry struct {
	docID string
	sum   [sha256.Size]byte
}

// Inbox ingests files reported by a Watcher. A rewritten file replaces the
// document it produced earlier; a removed file deletes it. Unchanged content
// is not ingested twice.
type Inbox struct {
	corpus  Corpus
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	entries map[string]inboxEntry
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(in *Inbox) { in.logger = l }
}

// WithIngestTimeout bounds each ingest call.
func WithIngestTimeout(d time.Duration) InboxOption {
	return func(in *Inbox) { in.timeout = d }
}

// NewInbox returns an Inbox feeding c.
func NewInbox(c Corpus, opts ...InboxOption) *Inbox {
	in := &Inbox{corpus: c, timeout: 5 * time.Minute, entries: make(map[string]inboxEntry)}
	for _, o := range opts {
		o(in)
	}
	in.logger = utils.OrNop(in.logger)
	return in
}

// FileChanged ingests path unless its content was already ingested.
func (in *Inbox) FileChanged(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("inbox read failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	sum := sha256.Sum256(content)

	in.mu.Lock()
	defer in.mu.Unlock()
	prev, seen := in.entries[path]
	if seen && prev.sum == sum {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()
	results, err := in.corpus.Ingest(ctx, []corpus.Upload{{Filename: filepath.Base(path), Content: content}})
	if err != nil {
		in.logger.Error("inbox ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	res := results[0]
	if res.Error != "" {
		in.logger.Warn("inbox file rejected", zap.String("path", path), zap.String("reason", res.Reason), zap.String("error", res.Error))
		return
	}
	in.entries[path] = inboxEntry{docID: res.DocID, sum: sum}
	in.logger.Info("inbox file ingested", zap.String("path", path), zap.String("doc_id", res.DocID))
	if seen {
		in.deleteLocked(ctx, path, prev.docID)
	}
}

// FileRemoved deletes the document ingested from path, if any.
func (in *Inbox) FileRemoved(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	prev, ok := in.entries[path]
	if !ok {
		return
	}
	delete(in.entries, path)
	ctx, cancel := context.WithTimeout(context.Background(), in.timeout)
	defer cancel()
	in.deleteLocked(ctx, path, prev.docID)
}

func (in *Inbox) deleteLocked(ctx context.Context, path, id string) {
	if err := in.corpus.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrDocumentNotFound) {
		in.logger.Warn("inbox delete failed", zap.String("path", path), zap.String("doc_id", id), zap.Error(err))
		return
	}
	in.logger.Info("inbox document removed", zap.String("path", path), zap.String("doc_id", id))
}

// Tracked returns the document id ingested from path.
func (in *Inbox) Tracked(path string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	e, ok := in.entries[path]
	return e.docID, ok
}
