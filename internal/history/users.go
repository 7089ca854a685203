package history

import (
	"context"
	"fmt"

	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/domain"
)

// Directory lists report recipients.
type Directory struct {
	store docstore.Store
	users string
}

// NewDirectory returns a Directory over the users collection.
func NewDirectory(store docstore.Store, users string) *Directory {
	return &Directory{store: store, users: users}
}

// ListUsers returns every user in creation order.
func (d *Directory) ListUsers(ctx context.Context) ([]domain.UserRecord, error) {
	docs, err := d.store.ListDocuments(ctx, d.users, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("ListUsers: list: %w", err)
	}

	users := make([]domain.UserRecord, 0, len(docs))
	for _, doc := range docs {
		u := domain.UserRecord{ID: doc.ID}
		if u.Name, _, err = docstore.String(doc.Fields, fieldName); err != nil {
			return nil, fmt.Errorf("ListUsers: user %s: %w", doc.ID, err)
		}
		if u.Email, _, err = docstore.String(doc.Fields, fieldEmail); err != nil {
			return nil, fmt.Errorf("ListUsers: user %s: %w", doc.ID, err)
		}
		users = append(users, u)
	}
	return users, nil
}
