package pipeline

import "time"

// Windows applied by the on-demand analysis.
const (
	// TransactionWindow is how far back transactions are read.
	TransactionWindow = 30 * 24 * time.Hour

	// MaxTransactions caps the transactions read per run.
	MaxTransactions = 100

	// MaxCategories caps the categories read per run.
	MaxCategories = 100
)
