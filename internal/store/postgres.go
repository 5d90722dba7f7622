package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		seq BIGINT NOT NULL,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		preprocessed_text TEXT,
		vector TEXT,
		cluster INTEGER,
		uploaded_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_seq ON documents(seq);
	`,
	placeholder: dollar,
}

// NewPostgresSnapshotter connects to dsn and initializes the schema.
func NewPostgresSnapshotter(dsn string) (Snapshotter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return newSQLSnapshotter(db, postgresDialect, nil)
}
