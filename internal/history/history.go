// Package history reads a user's transactions and categories from the
// document store and validates them into typed records.
package history

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/domain"
)

// Transaction and category document field names.
const (
	fieldUserID      = "userId"
	fieldAmount      = "amount"
	fieldType        = "type"
	fieldCategory    = "category"
	fieldDate        = "date"
	fieldDescription = "description"
	fieldName        = "name"
	fieldEmail       = "email"
)

// Source lists transactions and categories for one user.
type Source struct {
	store        docstore.Store
	transactions string
	categories   string
}

// NewSource returns a Source over the named collections.
func NewSource(store docstore.Store, transactions, categories string) *Source {
	return &Source{store: store, transactions: transactions, categories: categories}
}

// RecentTransactions returns the user's transactions dated at or after
// since, newest first. A non-positive limit returns every match.
//
// Stored dates are not always in the canonical layout, so the store only
// narrows the scan to a day-aligned bound a day early; the exact cutoff
// and the ordering are applied to the parsed instants.
func (s *Source) RecentTransactions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
	docs, err := s.store.ListDocuments(ctx, s.transactions, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Equal(fieldUserID, userID),
			docstore.GreaterThanEqual(fieldDate, scanBound(since)),
		},
		OrderBy: fieldDate,
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("RecentTransactions: list: %w", err)
	}

	txs := make([]domain.TransactionRecord, 0, len(docs))
	for _, doc := range docs {
		tx, err := DecodeTransaction(doc)
		if err != nil {
			return nil, fmt.Errorf("RecentTransactions: %w", err)
		}
		if tx.Date.Before(since) {
			continue
		}
		txs = append(txs, tx)
	}

	slices.SortStableFunc(txs, func(a, b domain.TransactionRecord) int {
		return b.Date.Compare(a.Date)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// scanBound is a date-only string that sorts at or before every stored
// representation of an instant at or after since, whatever its offset.
func scanBound(since time.Time) string {
	return since.UTC().AddDate(0, 0, -1).Format(time.DateOnly)
}

// CategoryNames returns the user's categories as an id to name map.
func (s *Source) CategoryNames(ctx context.Context, userID string, limit int) (map[string]string, error) {
	docs, err := s.store.ListDocuments(ctx, s.categories, docstore.Query{
		Filters: []docstore.Filter{docstore.Equal(fieldUserID, userID)},
		Limit:   max(limit, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("CategoryNames: list: %w", err)
	}

	names := make(map[string]string, len(docs))
	for _, doc := range docs {
		cat, err := DecodeCategory(doc)
		if err != nil {
			return nil, fmt.Errorf("CategoryNames: %w", err)
		}
		names[cat.ID] = cat.Name
	}
	return names, nil
}

// DecodeTransaction validates a transaction document. A missing amount is
// zero and a missing type is kept empty so aggregation ignores it; a
// negative or non-numeric amount is an error.
func DecodeTransaction(doc docstore.Document) (domain.TransactionRecord, error) {
	tx := domain.TransactionRecord{ID: doc.ID}
	var err error

	if tx.UserID, _, err = docstore.String(doc.Fields, fieldUserID); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	if tx.Amount, _, err = docstore.Decimal(doc.Fields, fieldAmount); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	if tx.Amount.IsNegative() {
		return tx, fmt.Errorf("transaction %s: negative amount %s", doc.ID, tx.Amount)
	}
	txType, _, err := docstore.String(doc.Fields, fieldType)
	if err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	tx.Type = domain.TransactionType(txType)
	if tx.CategoryID, _, err = docstore.String(doc.Fields, fieldCategory); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	if tx.Date, _, err = docstore.Time(doc.Fields, fieldDate); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	if tx.Description, _, err = docstore.String(doc.Fields, fieldDescription); err != nil {
		return tx, fmt.Errorf("transaction %s: %w", doc.ID, err)
	}
	return tx, nil
}

// DecodeCategory validates a category document.
func DecodeCategory(doc docstore.Document) (domain.CategoryRecord, error) {
	cat := domain.CategoryRecord{ID: doc.ID}
	var err error
	if cat.UserID, _, err = docstore.String(doc.Fields, fieldUserID); err != nil {
		return cat, fmt.Errorf("category %s: %w", doc.ID, err)
	}
	if cat.Name, _, err = docstore.String(doc.Fields, fieldName); err != nil {
		return cat, fmt.Errorf("category %s: %w", doc.ID, err)
	}
	return cat, nil
}
