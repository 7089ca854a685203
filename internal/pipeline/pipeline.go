// Package pipeline runs the credit-metered analysis: spend a credit, read
// the transaction window, summarise it, ask for advice and store the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
// Nothing done by earlier steps is undone.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		log.Debug().Int("step", i+1).Str("name", step.Name()).Str("user_id", state.UserID).Msg("Running pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				err = upstreamErr(step.Name(), ServiceStore, err)
			}
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Dependencies are the collaborators of an analysis run.
type Dependencies struct {
	Ledger  CreditLedger
	History HistorySource
	Advisor advisor.Client
	Records RecordStore
}

// NewAnalysisPipeline creates the standard 8-step analysis pipeline.
func NewAnalysisPipeline(deps Dependencies) *Pipeline {
	return NewPipeline(
		&ValidateInputStep{},
		&CheckCreditStep{Ledger: deps.Ledger},
		&FetchTransactionsStep{History: deps.History},
		&FetchCategoriesStep{History: deps.History},
		&AggregateStep{},
		&BuildPromptStep{},
		&GenerateAdviceStep{Advisor: deps.Advisor},
		&PersistStep{Records: deps.Records},
	)
}

// Result is the outcome of a successful run. Advice is the full generated
// text even when the stored copy was truncated.
type Result struct {
	AnalysisID string
	Summary    domain.AnalysisSummary
	Advice     string
	Credits    credits.Status
	Timestamp  time.Time
}

// Orchestrator runs the analysis pipeline for one user at a time. It holds
// no per-run state and is safe for concurrent use.
type Orchestrator struct {
	pipeline *Pipeline
	now      func() time.Time
}

// NewOrchestrator wires the standard pipeline.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	return &Orchestrator{pipeline: NewAnalysisPipeline(deps), now: time.Now}
}

// Run analyses userID. Failures are returned as *StepError.
func (o *Orchestrator) Run(ctx context.Context, userID string) (*Result, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{UserID: userID, StartedAt: o.now()}
	log.Info().Msg("Processing AI analysis")

	if err := o.pipeline.Execute(ctx, state); err != nil {
		var stepErr *StepError
		errors.As(err, &stepErr)
		event := log.Error()
		if stepErr != nil && (stepErr.Kind == KindValidation || stepErr.Kind == KindCredit || stepErr.Kind == KindNoData) {
			event = log.Warn()
		}
		event.Err(err).Msg("Analysis failed")
		if stepErr != nil {
			return nil, stepErr
		}
		return nil, err
	}

	log.Info().Str("analysis_id", state.Record.ID).Msg("Analysis completed successfully")
	return &Result{
		AnalysisID: state.Record.ID,
		Summary:    state.Summary,
		Advice:     state.Advice,
		Credits:    state.Credits,
		Timestamp:  o.now().UTC(),
	}, nil
}
