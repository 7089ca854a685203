package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/analysis"
	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/docstore"
)

func newAnalyzeCommand(env *Env) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a spending analysis for a user (spends one credit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			cmd.SetContext(ctx)

			client, err := env.NewAdvisor(ctx, env.Config)
			if err != nil {
				return fmt.Errorf("creating advisor: %w", err)
			}

			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				res, err := app.NewOrchestratorWithAdvisor(env.Config, store, client).Run(ctx, userID)
				if errors.Is(err, credits.ErrCreditsExhausted) {
					return fmt.Errorf("%w: %s", err, credits.UpgradeHint)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Analysis %s (%s)\n\n", res.AnalysisID, res.Timestamp.Format(time.RFC3339))
				fmt.Fprintf(out, "Total Income:  $%s\n", analysis.FormatAmount(res.Summary.TotalIncome))
				fmt.Fprintf(out, "Total Expense: $%s\n", analysis.FormatAmount(res.Summary.TotalExpense))
				fmt.Fprintf(out, "Net Balance:   $%s\n", analysis.FormatAmount(res.Summary.NetBalance))
				for _, share := range analysis.Breakdown(res.Summary) {
					fmt.Fprintf(out, "  %s: $%s (%s%%)\n", share.Name, analysis.FormatAmount(share.Amount), analysis.FormatPercent(share.Percent))
				}
				fmt.Fprintf(out, "\nCredits: %d of %d remaining\n\n", res.Credits.RemainingCredits, res.Credits.TotalCredits)
				fmt.Fprintln(out, res.Advice)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
