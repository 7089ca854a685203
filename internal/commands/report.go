package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/docstore"
)

func newReportCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Batch reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "weekly",
		Short: "Send the weekly summary email to every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				job, cleanup, err := app.NewReportJob(ctx, env.Config, store)
				if err != nil {
					return err
				}
				defer cleanup()

				res, err := job.Run(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Users: %d  Sent: %d  Skipped: %d  Failed: %d\n",
					res.Users, res.Sent, res.Skipped, len(res.Failures))
				return err
			})
		},
	})
	return cmd
}
