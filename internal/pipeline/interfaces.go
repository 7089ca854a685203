package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/domain"
)

// CreditLedger spends one credit per run. Satisfied by *credits.Ledger.
type CreditLedger interface {
	CheckAndDeduct(ctx context.Context, userID string) (credits.Status, error)
}

// HistorySource reads the user's transaction window. Satisfied by
// *history.Source.
type HistorySource interface {
	RecentTransactions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error)
	CategoryNames(ctx context.Context, userID string, limit int) (map[string]string, error)
}

// RecordStore persists the outcome of a run. Satisfied by *records.Store.
type RecordStore interface {
	Save(ctx context.Context, userID string, summary domain.AnalysisSummary, advice string) (domain.AnalysisRecord, error)
}
