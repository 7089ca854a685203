// Package domain holds the typed records exchanged between the store
// boundary and the analysis jobs.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a transaction as money in or money out.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// TransactionRecord is a user's transaction as read from the store.
type TransactionRecord struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal // never negative
	Type        TransactionType // may hold values other than income/expense
	CategoryID  string          // empty when uncategorised
	Date        time.Time
	Description string
}

// CategoryRecord is a user-defined category.
type CategoryRecord struct {
	ID     string
	UserID string
	Name   string
}

// CreditLedgerEntry is the per-user credit balance. Revision is the store
// revision the entry was read at and guards conditional writes.
type CreditLedgerEntry struct {
	UserID       string
	TotalCredits int
	UsedCredits  int
	IsPaid       bool
	LastUsedAt   *time.Time
	Revision     int64
}

// Remaining returns the credits still available.
func (e CreditLedgerEntry) Remaining() int {
	return e.TotalCredits - e.UsedCredits
}

// UserRecord is a recipient of the weekly report.
type UserRecord struct {
	ID    string
	Name  string
	Email string
}

// AnalysisRecord is the persisted result of one successful analysis run.
type AnalysisRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	AnalysisDate time.Time       `json:"analysisDate"`
	Summary      AnalysisSummary `json:"summary"`
	Advice       string          `json:"advice"`
	PeriodDays   int             `json:"periodDays"`
}
