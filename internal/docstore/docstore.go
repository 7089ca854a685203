// Package docstore defines the document store the jobs run against.
//
// The store offers single-document reads and writes plus filtered listing
// and nothing more: there are no multi-document transactions. Writes can be
// made conditional on the revision a document was read at, which is what
// lets callers implement compare-and-swap updates.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("docstore: document already exists")

	// ErrConflict is returned when a conditional update observes a different revision.
	ErrConflict = errors.New("docstore: revision conflict")

	// ErrInvalidQuery is returned for malformed collection or field names.
	ErrInvalidQuery = errors.New("docstore: invalid query")
)

// Store is the document store collaborator.
type Store interface {
	// GetDocument returns the document or ErrNotFound.
	GetDocument(ctx context.Context, collection, id string) (Document, error)

	// CreateDocument stores a new document. An empty id is replaced by a fresh unique id.
	CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (Document, error)

	// UpdateDocument merges fields into an existing document. When opts.IfRevision
	// is set and differs from the stored revision nothing is written and
	// ErrConflict is returned.
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any, opts UpdateOptions) (Document, error)

	// ListDocuments returns the documents matching q.
	ListDocuments(ctx context.Context, collection string, q Query) ([]Document, error)

	// Close releases the underlying connection.
	Close() error
}

// Document is a loosely-shaped record. Field values are JSON scalars:
// string, bool, nil, or a number (json.Number, float64 or an integer type).
type Document struct {
	ID        string
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// UpdateOptions controls UpdateDocument.
type UpdateOptions struct {
	IfRevision *int64
}

// IfRevision makes an update conditional on the stored revision.
func IfRevision(rev int64) UpdateOptions {
	return UpdateOptions{IfRevision: &rev}
}

// Operator is a filter comparison.
type Operator string

const (
	OpEqual            Operator = "equal"
	OpGreaterThanEqual Operator = "greaterThanEqual"
)

// Filter restricts a listing to documents whose field compares to Value.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Equal matches documents whose field equals v.
func Equal(field string, v any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: v}
}

// GreaterThanEqual matches documents whose field is >= v.
func GreaterThanEqual(field string, v any) Filter {
	return Filter{Field: field, Op: OpGreaterThanEqual, Value: v}
}

// Query describes a listing. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName rejects collection and field names that cannot be safely
// embedded in a backend query.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidQuery, name)
	}
	return nil
}

// Validate checks every name and operator referenced by the query.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if err := ValidateName(f.Field); err != nil {
			return err
		}
		if f.Op != OpEqual && f.Op != OpGreaterThanEqual {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	if q.OrderBy != "" {
		if err := ValidateName(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	return nil
}
