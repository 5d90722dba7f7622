package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		preprocessed_text TEXT,
		vector TEXT,
		cluster INTEGER,
		uploaded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(seq);
	`,
	placeholder: questionMark,
}

// NewSQLiteSnapshotter opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteSnapshotter(dbPath string) (Snapshotter, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the store already serializes saves.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return newSQLSnapshotter(db, sqliteDialect, []string{dbPath, dbPath + "-wal", dbPath + "-shm"})
}
