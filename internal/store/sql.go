package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/bunrui/internal/models"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name   string
	schema string
	// placeholder returns the bind marker for the n-th (1-based) argument.
	placeholder func(n int) string
}

// sqlSnapshotter keeps the corpus in a documents table, rewritten in one
// transaction per save.
type sqlSnapshotter struct {
	db      *sql.DB
	dialect dialect
	paths   []string
}

func newSQLSnapshotter(db *sql.DB, d dialect, paths []string) (*sqlSnapshotter, error) {
	if _, err := db.Exec(d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize %s schema: %w", d.name, err)
	}
	return &sqlSnapshotter{db: db, dialect: d, paths: paths}, nil
}

func (s *sqlSnapshotter) insertSQL() string {
	marks := make([]string, 9)
	for i := range marks {
		marks[i] = s.dialect.placeholder(i + 1)
	}
	return `INSERT INTO documents (id, seq, filename, file_type, raw_text, preprocessed_text, vector, cluster, uploaded_at)
		VALUES (` + strings.Join(marks, ", ") + `)`
}

// Load returns all documents ordered by sequence.
func (s *sqlSnapshotter) Load(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, filename, file_type, raw_text, preprocessed_text, vector, cluster, uploaded_at
		 FROM documents ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var (
			doc      models.Document
			seq      int64
			pre      sql.NullString
			vec      sql.NullString
			cluster  sql.NullInt64
			uploaded int64
		)
		if err := rows.Scan(&doc.ID, &seq, &doc.Filename, &doc.FileType, &doc.RawText, &pre, &vec, &cluster, &uploaded); err != nil {
			return nil, err
		}
		doc.Seq = uint64(seq)
		doc.UploadedAt = time.Unix(0, uploaded).UTC()
		if pre.Valid {
			s := pre.String
			doc.PreprocessedText = &s
		}
		if vec.Valid {
			if err := json.Unmarshal([]byte(vec.String), &doc.Vector); err != nil {
				return nil, fmt.Errorf("decode vector of %s: %w", doc.ID, err)
			}
		}
		if cluster.Valid {
			k := int(cluster.Int64)
			doc.Cluster = &k
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Save replaces the table contents with docs.
func (s *sqlSnapshotter) Save(ctx context.Context, docs []*models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		var pre, vec sql.NullString
		var cluster sql.NullInt64
		if d.PreprocessedText != nil {
			pre = sql.NullString{String: *d.PreprocessedText, Valid: true}
		}
		if d.Vector != nil {
			b, err := json.Marshal(d.Vector)
			if err != nil {
				return fmt.Errorf("encode vector of %s: %w", d.ID, err)
			}
			vec = sql.NullString{String: string(b), Valid: true}
		}
		if d.Cluster != nil {
			cluster = sql.NullInt64{Int64: int64(*d.Cluster), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, d.ID, int64(d.Seq), d.Filename, d.FileType, d.RawText,
			pre, vec, cluster, d.UploadedAt.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqlSnapshotter) Paths() []string { return s.paths }

// Close closes the database connection.
func (s *sqlSnapshotter) Close() error {
	return s.db.Close()
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }
