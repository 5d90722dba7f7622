package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/models"
)

type fakeCorpus struct {
	mu      sync.Mutex
	next    int
	docs    map[string]string // id -> content
	deleted []string
	reject  bool
}

func newFakeCorpus() *fakeCorpus {
	return &fakeCorpus{docs: make(map[string]string)}
}

func (f *fakeCorpus) Ingest(_ context.Context, uploads []corpus.Upload) ([]corpus.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]corpus.UploadResult, len(uploads))
	for i, up := range uploads {
		if f.reject {
			out[i] = corpus.UploadResult{Filename: up.Filename, Error: "unsupported", Reason: "unsupported_file_type"}
			continue
		}
		f.next++
		id := fmt.Sprintf("doc-%d", f.next)
		f.docs[id] = string(up.Content)
		out[i] = corpus.UploadResult{Filename: up.Filename, DocID: id}
	}
	return out, nil
}

func (f *fakeCorpus) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return models.ErrDocumentNotFound
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func TestInbox_IngestReplaceRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	fc := newFakeCorpus()
	in := NewInbox(fc)

	if err := writeFile(path, "first"); err != nil {
		t.Fatal(err)
	}
	in.FileChanged(path)
	id1, ok := in.Tracked(path)
	if !ok || fc.docs[id1] != "first" {
		t.Fatalf("first ingest: id=%q ok=%v docs=%v", id1, ok, fc.docs)
	}

	// Same content: no new document.
	in.FileChanged(path)
	if len(fc.docs) != 1 {
		t.Fatalf("unchanged file ingested twice: %v", fc.docs)
	}

	if err := writeFile(path, "second"); err != nil {
		t.Fatal(err)
	}
	in.FileChanged(path)
	id2, _ := in.Tracked(path)
	if id2 == id1 {
		t.Fatal("rewrite kept the old document id")
	}
	if _, ok := fc.docs[id1]; ok {
		t.Errorf("old document %s not deleted", id1)
	}
	if fc.docs[id2] != "second" {
		t.Errorf("docs = %v", fc.docs)
	}

	in.FileRemoved(path)
	if len(fc.docs) != 0 {
		t.Errorf("document left after removal: %v", fc.docs)
	}
	if _, ok := in.Tracked(path); ok {
		t.Error("path still tracked after removal")
	}
}

func TestInbox_RejectedFileNotTracked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	fc := newFakeCorpus()
	fc.reject = true
	in := NewInbox(fc)
	in.FileChanged(path)
	if _, ok := in.Tracked(path); ok {
		t.Error("rejected file should not be tracked")
	}
}

func TestInbox_MissingFileIgnored(t *testing.T) {
	fc := newFakeCorpus()
	in := NewInbox(fc)
	in.FileChanged(filepath.Join(t.TempDir(), "vanished.txt"))
	in.FileRemoved(filepath.Join(t.TempDir(), "never-seen.txt"))
	if len(fc.docs) != 0 || len(fc.deleted) != 0 {
		t.Errorf("unexpected corpus activity: docs=%v deleted=%v", fc.docs, fc.deleted)
	}
}

func TestInbox_WithWatcher(t *testing.T) {
	dir := t.TempDir()
	fc := newFakeCorpus()
	in := NewInbox(fc)
	startWatcher(t, in, Options{Roots: []string{dir}, Extensions: []string{".txt"}})

	path := filepath.Join(dir, "dropped.txt")
	if err := os.WriteFile(path, []byte("dropped into the inbox"), 0600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, ok := in.Tracked(path); return ok }) {
		t.Fatal("dropped file was not ingested")
	}
}
