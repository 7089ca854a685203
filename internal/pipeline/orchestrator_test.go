package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/docstore/memory"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/history"
	"github.com/dvloznov/financio/internal/pipeline"
	"github.com/dvloznov/financio/internal/records"
)

// MockAdvisor is a mock implementation of advisor.Client.
type MockAdvisor struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	Prompts      []string
}

func (m *MockAdvisor) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	return m.GenerateFunc(ctx, prompt)
}

// MockHistory is a mock implementation of pipeline.HistorySource.
type MockHistory struct {
	RecentTransactionsFunc func(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error)
	CategoryNamesFunc      func(ctx context.Context, userID string, limit int) (map[string]string, error)
}

func (m *MockHistory) RecentTransactions(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
	return m.RecentTransactionsFunc(ctx, userID, since, limit)
}

func (m *MockHistory) CategoryNames(ctx context.Context, userID string, limit int) (map[string]string, error) {
	return m.CategoryNamesFunc(ctx, userID, limit)
}

// MockRecords is a mock implementation of pipeline.RecordStore.
type MockRecords struct {
	SaveFunc func(ctx context.Context, userID string, summary domain.AnalysisSummary, advice string) (domain.AnalysisRecord, error)
}

func (m *MockRecords) Save(ctx context.Context, userID string, summary domain.AnalysisSummary, advice string) (domain.AnalysisRecord, error) {
	return m.SaveFunc(ctx, userID, summary, advice)
}

type fixture struct {
	store   *memory.Store
	ledger  *credits.Ledger
	history *history.Source
	records *records.Store
	advisor *MockAdvisor
}

func newFixture(t *testing.T, ledgerFields map[string]any) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	if ledgerFields != nil {
		_, err := store.CreateDocument(ctx, "rate_limits", "user-1", ledgerFields)
		require.NoError(t, err)
	}

	return &fixture{
		store:   store,
		ledger:  credits.NewLedger(store, "rate_limits", credits.FreeTierCredits),
		history: history.NewSource(store, "transactions", "categories"),
		records: records.NewStore(store, "ai_analyses"),
		advisor: &MockAdvisor{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
			return "## Financial Analysis\nHealthy.", nil
		}},
	}
}

func (f *fixture) seedScenario(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	recent := docstore.FormatTime(time.Now().Add(-48 * time.Hour))
	for id, fields := range map[string]map[string]any{
		"t1": {"userId": "user-1", "amount": 100, "type": "income", "date": recent},
		"t2": {"userId": "user-1", "amount": 40, "type": "expense", "category": "cat-food", "date": recent},
		"t3": {"userId": "user-1", "amount": 20, "type": "expense", "category": "cat-food", "date": recent},
		"t4": {"userId": "user-1", "amount": 10, "type": "expense", "date": recent},
	} {
		_, err := f.store.CreateDocument(ctx, "transactions", id, fields)
		require.NoError(t, err)
	}
	_, err := f.store.CreateDocument(ctx, "categories", "cat-food", map[string]any{"userId": "user-1", "name": "Food"})
	require.NoError(t, err)
}

func (f *fixture) deps() pipeline.Dependencies {
	return pipeline.Dependencies{Ledger: f.ledger, History: f.history, Advisor: f.advisor, Records: f.records}
}

func (f *fixture) usedCredits(t *testing.T) int {
	t.Helper()
	status, err := f.ledger.Status(context.Background(), "user-1")
	require.NoError(t, err)
	return status.UsedCredits
}

func (f *fixture) analysisCount(t *testing.T) int {
	t.Helper()
	docs, err := f.store.ListDocuments(context.Background(), "ai_analyses", docstore.Query{})
	require.NoError(t, err)
	return len(docs)
}

func requireStepError(t *testing.T, err error, step string, kind pipeline.ErrorKind) *pipeline.StepError {
	t.Helper()
	var stepErr *pipeline.StepError
	require.True(t, errors.As(err, &stepErr), "expected *StepError, got %v", err)
	assert.Equal(t, step, stepErr.Step)
	assert.Equal(t, kind, stepErr.Kind)
	return stepErr
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 2, "isPaid": false})
	f.seedScenario(t)

	result, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, result.AnalysisID)
	assert.Equal(t, "## Financial Analysis\nHealthy.", result.Advice)
	assert.Equal(t, credits.Status{TotalCredits: 10, UsedCredits: 3, RemainingCredits: 7}, result.Credits)
	assert.Equal(t, 4, result.Summary.TransactionCount)
	assert.Equal(t, "30", result.Summary.NetBalance.String())
	assert.Equal(t, "60", result.Summary.ExpenseByCategory["Food"].String())
	assert.False(t, result.Timestamp.IsZero())

	require.Len(t, f.advisor.Prompts, 1)
	assert.Contains(t, f.advisor.Prompts[0], "- Food: $60 (85.7%)")

	rec, err := f.records.Get(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, 30, rec.PeriodDays)
	assert.Equal(t, 3, f.usedCredits(t))
}

func TestRun_ResponseKeepsFullAdvice(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
	f.seedScenario(t)
	long := strings.Repeat("x", 6000)
	f.advisor.GenerateFunc = func(ctx context.Context, prompt string) (string, error) { return long, nil }

	result, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, result.Advice, 6000)

	rec, err := f.records.Get(context.Background(), result.AnalysisID)
	require.NoError(t, err)
	assert.Len(t, rec.Advice, records.MaxAdviceLength)
}

func TestRun_MissingUserID(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})

	_, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "  ")
	requireStepError(t, err, pipeline.StepValidateInput, pipeline.KindValidation)
	assert.ErrorIs(t, err, pipeline.ErrMissingUserID)
	assert.Equal(t, 0, f.usedCredits(t))
}

func TestRun_LedgerNotInitialized(t *testing.T) {
	f := newFixture(t, nil)
	f.seedScenario(t)

	_, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	requireStepError(t, err, pipeline.StepCheckCredit, pipeline.KindCredit)
	assert.ErrorIs(t, err, credits.ErrNotInitialized)
	assert.Empty(t, f.advisor.Prompts)
}

func TestRun_CreditsExhausted(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 10})
	f.seedScenario(t)

	_, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	requireStepError(t, err, pipeline.StepCheckCredit, pipeline.KindCredit)
	assert.ErrorIs(t, err, credits.ErrCreditsExhausted)
	assert.Equal(t, 10, f.usedCredits(t))
	assert.Empty(t, f.advisor.Prompts)
	assert.Equal(t, 0, f.analysisCount(t))
}

func TestRun_NoTransactionsKeepsCreditSpent(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 4})

	_, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	requireStepError(t, err, pipeline.StepFetchTransactions, pipeline.KindNoData)
	assert.ErrorIs(t, err, pipeline.ErrNoTransactions)

	// Charge-on-attempt: the credit spent in CheckCredit is not refunded.
	assert.Equal(t, 5, f.usedCredits(t))
	assert.Empty(t, f.advisor.Prompts)
}

func TestRun_IgnoresTransactionsOutsideWindow(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
	_, err := f.store.CreateDocument(context.Background(), "transactions", "ancient", map[string]any{
		"userId": "user-1", "amount": 10, "type": "expense",
		"date": docstore.FormatTime(time.Now().Add(-45 * 24 * time.Hour)),
	})
	require.NoError(t, err)

	_, err = pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	requireStepError(t, err, pipeline.StepFetchTransactions, pipeline.KindNoData)
}

func TestRun_AdvisorFailureKeepsCreditSpent(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
	f.seedScenario(t)
	f.advisor.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", advisor.ErrAdvisory
	}

	_, err := pipeline.NewOrchestrator(f.deps()).Run(context.Background(), "user-1")
	stepErr := requireStepError(t, err, pipeline.StepGenerateAdvice, pipeline.KindUpstream)
	assert.Equal(t, pipeline.ServiceAdvisor, stepErr.Service)
	assert.Equal(t, 1, f.usedCredits(t))
	assert.Equal(t, 0, f.analysisCount(t))
}

func TestRun_PersistFailureKeepsCreditSpent(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
	f.seedScenario(t)
	deps := f.deps()
	deps.Records = &MockRecords{
		SaveFunc: func(ctx context.Context, userID string, summary domain.AnalysisSummary, advice string) (domain.AnalysisRecord, error) {
			return domain.AnalysisRecord{}, errors.New("write quota exceeded")
		},
	}

	_, err := pipeline.NewOrchestrator(deps).Run(context.Background(), "user-1")
	requireStepError(t, err, pipeline.StepPersist, pipeline.KindPersistence)
	assert.Equal(t, 1, f.usedCredits(t))
	assert.Len(t, f.advisor.Prompts, 1)
}

func TestRun_StoreFailures(t *testing.T) {
	storeDown := errors.New("store unavailable")

	tests := []struct {
		name    string
		history *MockHistory
		step    string
	}{
		{
			name: "transactions",
			history: &MockHistory{
				RecentTransactionsFunc: func(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
					return nil, storeDown
				},
			},
			step: pipeline.StepFetchTransactions,
		},
		{
			name: "categories",
			history: &MockHistory{
				RecentTransactionsFunc: func(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
					return []domain.TransactionRecord{{ID: "t1", Type: domain.TransactionIncome}}, nil
				},
				CategoryNamesFunc: func(ctx context.Context, userID string, limit int) (map[string]string, error) {
					return nil, storeDown
				},
			},
			step: pipeline.StepFetchCategories,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
			deps := f.deps()
			deps.History = tt.history

			_, err := pipeline.NewOrchestrator(deps).Run(context.Background(), "user-1")
			stepErr := requireStepError(t, err, tt.step, pipeline.KindUpstream)
			assert.Equal(t, pipeline.ServiceStore, stepErr.Service)
			assert.ErrorIs(t, err, storeDown)
			assert.Equal(t, 1, f.usedCredits(t))
		})
	}
}

func TestRun_FetchesConfiguredWindow(t *testing.T) {
	f := newFixture(t, map[string]any{"totalCredits": 10, "usedCredits": 0})
	var gotSince time.Time
	var gotTxLimit, gotCatLimit int
	deps := f.deps()
	deps.History = &MockHistory{
		RecentTransactionsFunc: func(ctx context.Context, userID string, since time.Time, limit int) ([]domain.TransactionRecord, error) {
			gotSince, gotTxLimit = since, limit
			return []domain.TransactionRecord{{ID: "t1", Type: domain.TransactionIncome}}, nil
		},
		CategoryNamesFunc: func(ctx context.Context, userID string, limit int) (map[string]string, error) {
			gotCatLimit = limit
			return map[string]string{}, nil
		},
	}

	_, err := pipeline.NewOrchestrator(deps).Run(context.Background(), "user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-pipeline.TransactionWindow), gotSince, time.Minute)
	assert.Equal(t, pipeline.MaxTransactions, gotTxLimit)
	assert.Equal(t, pipeline.MaxCategories, gotCatLimit)
}

// recordingStep appends its name when executed.
type recordingStep struct {
	name string
	log  *[]string
	err  error
}

func (s *recordingStep) Name() string { return s.name }

func (s *recordingStep) Execute(ctx context.Context, state *pipeline.PipelineState) error {
	*s.log = append(*s.log, s.name)
	return s.err
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	p := pipeline.NewPipeline(
		&recordingStep{name: "a", log: &ran},
		&recordingStep{name: "b", log: &ran, err: errors.New("boom")},
		&recordingStep{name: "c", log: &ran},
	)

	err := p.Execute(context.Background(), &pipeline.PipelineState{UserID: "u"})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, ran)

	stepErr := requireStepError(t, err, "b", pipeline.KindUpstream)
	assert.Contains(t, err.Error(), "pipeline step 2 failed")
	assert.Equal(t, "boom", stepErr.Err.Error())
}
