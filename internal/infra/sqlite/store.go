// Package sqlite is a docstore.Store backed by a single SQLite table. Each
// document's fields are kept as a JSON object and filtered with json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/financio/internal/docstore"

	_ "modernc.org/sqlite"
)

// Store implements docstore.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// Open creates the database file if needed, applies pending migrations and
// returns a ready Store.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("Open: open sqlite database: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const selectColumns = `id, revision, fields, created_at, updated_at`

// GetDocument implements docstore.Store.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (docstore.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`, collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("GetDocument: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("GetDocument: %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// CreateDocument implements docstore.Store.
func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	if err := docstore.ValidateName(collection); err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	data, err := docstore.EncodeFields(fields)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %w", err)
	}
	now := docstore.FormatTime(s.now())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, revision, fields, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(data), now, now)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: insert %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: rows affected: %w", err)
	} else if n == 0 {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}

	return s.GetDocument(ctx, collection, id)
}

// UpdateDocument implements docstore.Store. The read, merge and guarded
// write happen in one transaction; the write only lands while the stored
// revision is still the one that was read.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any, opts docstore.UpdateOptions) (docstore.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: read %s/%s: %w", collection, id, err)
	}
	if opts.IfRevision != nil && *opts.IfRevision != current.Revision {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s at revision %d, expected %d: %w",
			collection, id, current.Revision, *opts.IfRevision, docstore.ErrConflict)
	}

	data, err := docstore.EncodeFields(docstore.MergeFields(current.Fields, fields))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET fields = ?, revision = revision + 1, updated_at = ?
		WHERE collection = ? AND id = ? AND revision = ?`,
		string(data), docstore.FormatTime(s.now()), collection, id, current.Revision)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: write %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: rows affected: %w", err)
	} else if n == 0 {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s: %w", collection, id, docstore.ErrConflict)
	}

	updated, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`, collection, id))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: reread %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: commit: %w", err)
	}
	return updated, nil
}

// ListDocuments implements docstore.Store.
func (s *Store) ListDocuments(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	query, args, err := BuildListQuery(collection, q)
	if err != nil {
		return nil, fmt.Errorf("ListDocuments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListDocuments: query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDocuments: scan: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDocuments: iterate: %w", err)
	}
	return out, nil
}

// BuildListQuery renders q as a parameterized SELECT. Field names are
// validated before they are embedded in JSON paths.
func BuildListQuery(collection string, q docstore.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM documents WHERE collection = ?`)
	args := []any{collection}

	for _, f := range q.Filters {
		op := "="
		if f.Op == docstore.OpGreaterThanEqual {
			op = ">="
		}
		fmt.Fprintf(&b, ` AND json_extract(fields, '$.%s') %s ?`, f.Field, op)
		args = append(args, docstore.SQLValue(f.Value))
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY json_extract(fields, '$.%s') %s, id ASC`, q.OrderBy, dir)
	} else {
		b.WriteString(` ORDER BY created_at ASC, id ASC`)
	}

	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (docstore.Document, error) {
	var (
		doc                  docstore.Document
		fields               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.ID, &doc.Revision, &fields, &createdAt, &updatedAt); err != nil {
		return docstore.Document{}, err
	}

	var err error
	if doc.Fields, err = docstore.DecodeFields([]byte(fields)); err != nil {
		return docstore.Document{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if doc.CreatedAt, err = time.Parse(docstore.TimeLayout, createdAt); err != nil {
		return docstore.Document{}, fmt.Errorf("document %s: created_at: %w", doc.ID, err)
	}
	if doc.UpdatedAt, err = time.Parse(docstore.TimeLayout, updatedAt); err != nil {
		return docstore.Document{}, fmt.Errorf("document %s: updated_at: %w", doc.ID, err)
	}
	return doc, nil
}
