package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AnalysisSummary is the aggregate of a transaction window.
// The sum of ExpenseByCategory always equals TotalExpense.
type AnalysisSummary struct {
	TotalIncome       decimal.Decimal
	TotalExpense      decimal.Decimal
	NetBalance        decimal.Decimal
	ExpenseByCategory map[string]decimal.Decimal
	TransactionCount  int
}

// summaryJSON is the serialized layout stored with analysis records.
// Amounts are written as bare JSON numbers.
type summaryJSON struct {
	TotalIncome       json.Number            `json:"total_income"`
	TotalExpense      json.Number            `json:"total_expense"`
	NetBalance        json.Number            `json:"net_balance"`
	ExpenseByCategory map[string]json.Number `json:"expense_by_category"`
	TransactionCount  int                    `json:"transaction_count"`
}

// MarshalJSON implements json.Marshaler.
func (s AnalysisSummary) MarshalJSON() ([]byte, error) {
	byCategory := make(map[string]json.Number, len(s.ExpenseByCategory))
	for name, amount := range s.ExpenseByCategory {
		byCategory[name] = json.Number(amount.String())
	}
	return json.Marshal(summaryJSON{
		TotalIncome:       json.Number(s.TotalIncome.String()),
		TotalExpense:      json.Number(s.TotalExpense.String()),
		NetBalance:        json.Number(s.NetBalance.String()),
		ExpenseByCategory: byCategory,
		TransactionCount:  s.TransactionCount,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *AnalysisSummary) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("AnalysisSummary: %w", err)
	}

	parse := func(field string, n json.Number) (decimal.Decimal, error) {
		if n == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("AnalysisSummary: %s: %w", field, err)
		}
		return d, nil
	}

	var err error
	if s.TotalIncome, err = parse("total_income", raw.TotalIncome); err != nil {
		return err
	}
	if s.TotalExpense, err = parse("total_expense", raw.TotalExpense); err != nil {
		return err
	}
	if s.NetBalance, err = parse("net_balance", raw.NetBalance); err != nil {
		return err
	}
	s.ExpenseByCategory = make(map[string]decimal.Decimal, len(raw.ExpenseByCategory))
	for name, n := range raw.ExpenseByCategory {
		if s.ExpenseByCategory[name], err = parse("expense_by_category."+name, n); err != nil {
			return err
		}
	}
	s.TransactionCount = raw.TransactionCount
	return nil
}
