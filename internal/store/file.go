package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/bunrui/internal/models"
)

const fileSnapshotVersion = 1

type fileSnapshot struct {
	Version   int                `json:"version"`
	Documents []*models.Document `json:"documents"`
}

// FileSnapshotter stores the corpus as a single JSON document.
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter returns a snapshotter writing to path.
func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{path: path}
}

// Load reads the snapshot. A missing file is an empty corpus.
func (f *FileSnapshotter) Load(_ context.Context) ([]*models.Document, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	if snap.Version != fileSnapshotVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", f.path, snap.Version)
	}
	return snap.Documents, nil
}

// Save writes docs to a temporary file and renames it over the snapshot.
func (f *FileSnapshotter) Save(ctx context.Context, docs []*models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	data, err := json.Marshal(fileSnapshot{Version: fileSnapshotVersion, Documents: docs})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".documents-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileSnapshotter) Paths() []string { return []string{f.path} }

func (f *FileSnapshotter) Close() error { return nil }
