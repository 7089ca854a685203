package history_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/docstore/memory"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/history"
)

func mustCreate(t *testing.T, s docstore.Store, coll, id string, fields map[string]any) {
	t.Helper()
	_, err := s.CreateDocument(context.Background(), coll, id, fields)
	require.NoError(t, err)
}

func TestRecentTransactions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	mustCreate(t, store, "transactions", "old", map[string]any{
		"userId": "u1", "amount": 5, "type": "expense", "date": docstore.FormatTime(now.Add(-40 * day)),
	})
	mustCreate(t, store, "transactions", "a", map[string]any{
		"userId": "u1", "amount": json.Number("100.25"), "type": "income", "date": docstore.FormatTime(now.Add(-2 * day)),
		"description": "Invoice #12",
	})
	mustCreate(t, store, "transactions", "b", map[string]any{
		"userId": "u1", "amount": 40.0, "type": "expense", "category": "cat-food", "date": docstore.FormatTime(now.Add(-1 * day)),
	})
	mustCreate(t, store, "transactions", "c", map[string]any{
		"userId": "u1", "amount": 3, "type": "expense", "date": docstore.FormatTime(now.Add(-10 * day)),
	})
	mustCreate(t, store, "transactions", "other", map[string]any{
		"userId": "u2", "amount": 7, "type": "expense", "date": docstore.FormatTime(now.Add(-1 * day)),
	})

	src := history.NewSource(store, "transactions", "categories")

	txs, err := src.RecentTransactions(ctx, "u1", now.Add(-30*day), 100)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{txs[0].ID, txs[1].ID, txs[2].ID})

	assert.Equal(t, domain.TransactionExpense, txs[0].Type)
	assert.Equal(t, "cat-food", txs[0].CategoryID)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(40)))
	assert.True(t, txs[1].Amount.Equal(decimal.RequireFromString("100.25")))
	assert.Equal(t, "Invoice #12", txs[1].Description)
	assert.Empty(t, txs[2].CategoryID)

	limited, err := src.RecentTransactions(ctx, "u1", now.Add(-30*day), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecentTransactions_MixedDateLayouts(t *testing.T) {
	store := memory.New()
	since := time.Date(2026, 5, 24, 0, 0, 0, 0, time.UTC)

	mustCreate(t, store, "transactions", "offset-at-cutoff", map[string]any{
		"userId": "u1", "amount": 10, "type": "expense", "date": "2026-05-24T00:00:00.000+00:00",
	})
	mustCreate(t, store, "transactions", "day-only-at-cutoff", map[string]any{
		"userId": "u1", "amount": 20, "type": "expense", "date": "2026-05-24",
	})
	mustCreate(t, store, "transactions", "east-of-utc", map[string]any{
		"userId": "u1", "amount": 30, "type": "income", "date": "2026-05-25T06:00:00+07:00",
	})
	mustCreate(t, store, "transactions", "canonical", map[string]any{
		"userId": "u1", "amount": 40, "type": "income", "date": "2026-05-24T12:00:00.000Z",
	})
	mustCreate(t, store, "transactions", "just-before", map[string]any{
		"userId": "u1", "amount": 50, "type": "expense", "date": "2026-05-23T23:59:59.999Z",
	})

	src := history.NewSource(store, "transactions", "categories")
	txs, err := src.RecentTransactions(context.Background(), "u1", since, 0)
	require.NoError(t, err)

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	// east-of-utc is 2026-05-24T23:00Z.
	assert.Equal(t, []string{"east-of-utc", "canonical"}, ids[:2])
	assert.ElementsMatch(t, []string{"east-of-utc", "canonical", "offset-at-cutoff", "day-only-at-cutoff"}, ids)

	limited, err := src.RecentTransactions(context.Background(), "u1", since, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "east-of-utc", limited[0].ID)
}

func TestRecentTransactions_RejectsMalformed(t *testing.T) {
	store := memory.New()
	mustCreate(t, store, "transactions", "bad", map[string]any{
		"userId": "u1", "amount": "a lot", "type": "expense", "date": "2026-05-30T00:00:00.000Z",
	})

	_, err := history.NewSource(store, "transactions", "categories").
		RecentTransactions(context.Background(), "u1", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 100)
	assert.Error(t, err)
}

func TestDecodeTransaction(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		wantErr bool
		check   func(t *testing.T, tx domain.TransactionRecord)
	}{
		{
			name:   "missing amount is zero",
			fields: map[string]any{"userId": "u1", "type": "income"},
			check: func(t *testing.T, tx domain.TransactionRecord) {
				assert.True(t, tx.Amount.IsZero())
			},
		},
		{
			name:   "missing type stays empty",
			fields: map[string]any{"userId": "u1", "amount": 10},
			check: func(t *testing.T, tx domain.TransactionRecord) {
				assert.Equal(t, domain.TransactionType(""), tx.Type)
			},
		},
		{
			name:   "null category",
			fields: map[string]any{"userId": "u1", "amount": 10, "type": "expense", "category": nil},
			check: func(t *testing.T, tx domain.TransactionRecord) {
				assert.Empty(t, tx.CategoryID)
			},
		},
		{
			name:    "negative amount",
			fields:  map[string]any{"userId": "u1", "amount": -1, "type": "expense"},
			wantErr: true,
		},
		{
			name:    "bad date",
			fields:  map[string]any{"userId": "u1", "amount": 1, "date": "last tuesday"},
			wantErr: true,
		},
		{
			name:    "numeric category",
			fields:  map[string]any{"userId": "u1", "amount": 1, "category": 12},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := history.DecodeTransaction(docstore.Document{ID: "t1", Fields: tt.fields})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "t1", tx.ID)
			tt.check(t, tx)
		})
	}
}

func TestCategoryNames(t *testing.T) {
	store := memory.New()
	mustCreate(t, store, "categories", "cat-food", map[string]any{"userId": "u1", "name": "Food"})
	mustCreate(t, store, "categories", "cat-rent", map[string]any{"userId": "u1", "name": "Rent"})
	mustCreate(t, store, "categories", "cat-x", map[string]any{"userId": "u2", "name": "Other"})

	names, err := history.NewSource(store, "transactions", "categories").CategoryNames(context.Background(), "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cat-food": "Food", "cat-rent": "Rent"}, names)
}

func TestListUsers(t *testing.T) {
	store := memory.New()
	mustCreate(t, store, "users", "u1", map[string]any{"name": "Sari", "email": "sari@example.com"})
	mustCreate(t, store, "users", "u2", map[string]any{"name": "Budi"})

	users, err := history.NewDirectory(store, "users").ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	byID := map[string]domain.UserRecord{}
	for _, u := range users {
		byID[u.ID] = u
	}
	assert.Equal(t, "sari@example.com", byID["u1"].Email)
	assert.Empty(t, byID["u2"].Email)
}
