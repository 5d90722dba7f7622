// Package store is the system of record for documents and their snapshot persistence.
package store

import (
	"context"
	"fmt"

	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/models"
)

// Snapshotter persists and restores the full document set.
// Save replaces the previous snapshot wholesale.
type Snapshotter interface {
	Load(ctx context.Context) ([]*models.Document, error)
	Save(ctx context.Context, docs []*models.Document) error
	// Paths lists the files backing the snapshot, for disk usage reporting.
	Paths() []string
	Close() error
}

// Backend names accepted in storage.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// OpenSnapshotter returns the snapshot backend selected by cfg.
func OpenSnapshotter(cfg config.StorageConfig) (Snapshotter, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileSnapshotter(cfg.SnapshotPath), nil
	case BackendSQLite:
		return NewSQLiteSnapshotter(cfg.DatabasePath)
	case BackendPostgres:
		return NewPostgresSnapshotter(cfg.PostgresDSN)
	case BackendMemory:
		return MemorySnapshotter{}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// MemorySnapshotter keeps nothing; the store lives only in memory.
type MemorySnapshotter struct{}

func (MemorySnapshotter) Load(context.Context) ([]*models.Document, error) { return nil, nil }
func (MemorySnapshotter) Save(context.Context, []*models.Document) error   { return nil }
func (MemorySnapshotter) Paths() []string                                  { return nil }
func (MemorySnapshotter) Close() error                                     { return nil }
