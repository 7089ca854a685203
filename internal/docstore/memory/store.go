// Package memory is an in-process docstore.Store used by tests and the
// local "memory" backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/financio/internal/docstore"
)

// Store keeps documents in maps keyed by collection and id.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	now         func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		now:         time.Now,
	}
}

var _ docstore.Store = (*Store)(nil)

// GetDocument implements docstore.Store.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("GetDocument: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return clone(doc), nil
}

// CreateDocument implements docstore.Store.
func (s *Store) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	if err := docstore.ValidateName(collection); err != nil {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]docstore.Document)
		s.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return docstore.Document{}, fmt.Errorf("CreateDocument: %s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}

	now := s.now().UTC()
	doc := docstore.Document{
		ID:        id,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    copyFields(fields),
	}
	docs[id] = doc
	return clone(doc), nil
}

// UpdateDocument implements docstore.Store.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any, opts docstore.UpdateOptions) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if opts.IfRevision != nil && *opts.IfRevision != doc.Revision {
		return docstore.Document{}, fmt.Errorf("UpdateDocument: %s/%s at revision %d, expected %d: %w",
			collection, id, doc.Revision, *opts.IfRevision, docstore.ErrConflict)
	}

	doc.Fields = docstore.MergeFields(doc.Fields, copyFields(fields))
	doc.Revision++
	doc.UpdatedAt = s.now().UTC()
	s.collections[collection][id] = doc
	return clone(doc), nil
}

// ListDocuments implements docstore.Store.
func (s *Store) ListDocuments(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("ListDocuments: %w", err)
	}

	s.mu.RLock()
	var out []docstore.Document
	for _, doc := range s.collections[collection] {
		if docstore.Matches(doc.Fields, q.Filters) {
			out = append(out, clone(doc))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy == "" {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		}
		cmp, _ := docstore.Compare(out[i].Fields[q.OrderBy], out[j].Fields[q.OrderBy])
		if cmp == 0 {
			return out[i].ID < out[j].ID
		}
		if q.Desc {
			return cmp > 0
		}
		return cmp < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Close implements docstore.Store.
func (s *Store) Close() error { return nil }

func clone(doc docstore.Document) docstore.Document {
	doc.Fields = copyFields(doc.Fields)
	return doc
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
