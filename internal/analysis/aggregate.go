// Package analysis turns a transaction window into a financial summary and
// the advisory prompt built from it. Everything here is pure.
package analysis

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/financio/internal/domain"
)

// UnknownCategory labels expenses whose category is missing or unmapped.
const UnknownCategory = "Unknown"

// Aggregate sums income and expense over txs. Expenses are grouped by the
// category name found in names. Transactions of any other type are counted
// but contribute to neither total.
func Aggregate(txs []domain.TransactionRecord, names map[string]string) domain.AnalysisSummary {
	summary := domain.AnalysisSummary{
		TotalIncome:       decimal.Zero,
		TotalExpense:      decimal.Zero,
		ExpenseByCategory: make(map[string]decimal.Decimal),
		TransactionCount:  len(txs),
	}

	for _, tx := range txs {
		switch tx.Type {
		case domain.TransactionIncome:
			summary.TotalIncome = summary.TotalIncome.Add(tx.Amount)
		case domain.TransactionExpense:
			summary.TotalExpense = summary.TotalExpense.Add(tx.Amount)
			name := CategoryName(names, tx.CategoryID)
			summary.ExpenseByCategory[name] = summary.ExpenseByCategory[name].Add(tx.Amount)
		}
	}

	summary.NetBalance = summary.TotalIncome.Sub(summary.TotalExpense)
	return summary
}

// CategoryName resolves a category id, falling back to UnknownCategory.
func CategoryName(names map[string]string, id string) string {
	if id == "" {
		return UnknownCategory
	}
	if name, ok := names[id]; ok {
		return name
	}
	return UnknownCategory
}

// CategoryShare is one line of the expense breakdown.
type CategoryShare struct {
	Name    string
	Amount  decimal.Decimal
	Percent decimal.Decimal // share of total expense, 0 when there is no expense
}

var hundred = decimal.NewFromInt(100)

// Breakdown lists expense categories by amount, largest first, with ties
// ordered by name.
func Breakdown(summary domain.AnalysisSummary) []CategoryShare {
	shares := make([]CategoryShare, 0, len(summary.ExpenseByCategory))
	for name, amount := range summary.ExpenseByCategory {
		pct := decimal.Zero
		if summary.TotalExpense.IsPositive() {
			pct = amount.Div(summary.TotalExpense).Mul(hundred)
		}
		shares = append(shares, CategoryShare{Name: name, Amount: amount, Percent: pct})
	}

	sort.Slice(shares, func(i, j int) bool {
		if c := shares[i].Amount.Cmp(shares[j].Amount); c != 0 {
			return c > 0
		}
		return shares[i].Name < shares[j].Name
	})
	return shares
}
