package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/analysis"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/domain"
)

// Step names, in execution order.
const (
	StepValidateInput     = "ValidateInput"
	StepCheckCredit       = "CheckCredit"
	StepFetchTransactions = "FetchTransactions"
	StepFetchCategories   = "FetchCategories"
	StepAggregate         = "Aggregate"
	StepBuildPrompt       = "BuildPrompt"
	StepGenerateAdvice    = "GenerateAdvice"
	StepPersist           = "Persist"
)

// PipelineStep represents a single step in the analysis pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID        string
	StartedAt     time.Time
	Credits       credits.Status
	Transactions  []domain.TransactionRecord
	CategoryNames map[string]string
	Summary       domain.AnalysisSummary
	Prompt        string
	Advice        string
	Record        domain.AnalysisRecord
}

// Step 1: ValidateInputStep requires a user id.
type ValidateInputStep struct{}

func (s *ValidateInputStep) Name() string { return StepValidateInput }

func (s *ValidateInputStep) Execute(ctx context.Context, state *PipelineState) error {
	state.UserID = strings.TrimSpace(state.UserID)
	if state.UserID == "" {
		return stepErr(s.Name(), KindValidation, ErrMissingUserID)
	}
	return nil
}

// Step 2: CheckCreditStep spends one credit. The credit is not returned if
// a later step fails.
type CheckCreditStep struct {
	Ledger CreditLedger
}

func (s *CheckCreditStep) Name() string { return StepCheckCredit }

func (s *CheckCreditStep) Execute(ctx context.Context, state *PipelineState) error {
	status, err := s.Ledger.CheckAndDeduct(ctx, state.UserID)
	if err != nil {
		var credErr *credits.Error
		if errors.As(err, &credErr) {
			return stepErr(s.Name(), KindCredit, err)
		}
		return upstreamErr(s.Name(), ServiceStore, err)
	}
	state.Credits = status
	return nil
}

// Step 3: FetchTransactionsStep reads the transaction window.
type FetchTransactionsStep struct {
	History HistorySource
}

func (s *FetchTransactionsStep) Name() string { return StepFetchTransactions }

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	since := state.StartedAt.Add(-TransactionWindow)
	txs, err := s.History.RecentTransactions(ctx, state.UserID, since, MaxTransactions)
	if err != nil {
		return upstreamErr(s.Name(), ServiceStore, err)
	}
	if len(txs) == 0 {
		return stepErr(s.Name(), KindNoData, ErrNoTransactions)
	}
	state.Transactions = txs
	return nil
}

// Step 4: FetchCategoriesStep resolves the user's category names.
type FetchCategoriesStep struct {
	History HistorySource
}

func (s *FetchCategoriesStep) Name() string { return StepFetchCategories }

func (s *FetchCategoriesStep) Execute(ctx context.Context, state *PipelineState) error {
	names, err := s.History.CategoryNames(ctx, state.UserID, MaxCategories)
	if err != nil {
		return upstreamErr(s.Name(), ServiceStore, err)
	}
	state.CategoryNames = names
	return nil
}

// Step 5: AggregateStep summarises the window.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return StepAggregate }

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Summary = analysis.Aggregate(state.Transactions, state.CategoryNames)
	return nil
}

// Step 6: BuildPromptStep renders the advisory prompt.
type BuildPromptStep struct{}

func (s *BuildPromptStep) Name() string { return StepBuildPrompt }

func (s *BuildPromptStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Prompt = analysis.BuildPrompt(state.Summary)
	return nil
}

// Step 7: GenerateAdviceStep asks the advisory service for advice.
type GenerateAdviceStep struct {
	Advisor advisor.Client
}

func (s *GenerateAdviceStep) Name() string { return StepGenerateAdvice }

func (s *GenerateAdviceStep) Execute(ctx context.Context, state *PipelineState) error {
	advice, err := s.Advisor.Generate(ctx, state.Prompt)
	if err != nil {
		return upstreamErr(s.Name(), ServiceAdvisor, err)
	}
	state.Advice = advice
	return nil
}

// Step 8: PersistStep saves the analysis record.
type PersistStep struct {
	Records RecordStore
}

func (s *PersistStep) Name() string { return StepPersist }

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	record, err := s.Records.Save(ctx, state.UserID, state.Summary, state.Advice)
	if err != nil {
		return stepErr(s.Name(), KindPersistence, err)
	}
	state.Record = record
	return nil
}
