package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/analysis"
	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/docstore"
)

func newAnalysesCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyses",
		Short: "Browse stored analyses",
	}
	cmd.AddCommand(newAnalysesListCommand(env), newAnalysesShowCommand(env))
	return cmd
}

func newAnalysesListCommand(env *Env) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				recs, err := app.NewRecords(env.Config, store).ListByUser(ctx, userID, limit)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No analyses for %s\n", userID)
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDATE\tINCOME\tEXPENSE\tTRANSACTIONS")
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t$%s\t$%s\t%d\n",
						r.ID,
						r.AnalysisDate.Format(time.DateTime),
						analysis.FormatAmount(r.Summary.TotalIncome),
						analysis.FormatAmount(r.Summary.TotalExpense),
						r.Summary.TransactionCount)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of analyses")

	return cmd
}

func newAnalysesShowCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				rec, err := app.NewRecords(env.Config, store).Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Analysis %s for %s (%s, last %d days)\n\n",
					rec.ID, rec.UserID, rec.AnalysisDate.Format(time.RFC3339), rec.PeriodDays)
				fmt.Fprintln(out, rec.Advice)
				return nil
			})
		},
	}
}
