package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/docstore"
)

func newCreditsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and provision analysis credits",
	}
	cmd.AddCommand(newCreditsShowCommand(env), newCreditsInitCommand(env))
	return cmd
}

func newCreditsShowCommand(env *Env) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				status, err := app.NewLedger(env.Config, store).Status(ctx, userID)
				if errors.Is(err, credits.ErrNotInitialized) {
					return fmt.Errorf("no credit entry for %s; run 'credits init --user %s'", userID, userID)
				}
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), userID, status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newCreditsInitCommand(env *Env) *cobra.Command {
	var (
		userID string
		paid   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a user's credit entry if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, env, func(ctx context.Context, store docstore.Store) error {
				status, created, err := app.NewLedger(env.Config, store).Provision(ctx, userID, paid)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Created credit entry for %s\n", userID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Credit entry for %s already exists\n", userID)
				}
				printStatus(cmd.OutOrStdout(), userID, status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().BoolVar(&paid, "paid", false, "provision the paid tier")

	return cmd
}

func printStatus(w io.Writer, userID string, s credits.Status) {
	tier := "free"
	if s.IsPaid {
		tier = "paid"
	}
	fmt.Fprintf(w, "User:      %s (%s)\n", userID, tier)
	fmt.Fprintf(w, "Total:     %d\n", s.TotalCredits)
	fmt.Fprintf(w, "Used:      %d\n", s.UsedCredits)
	fmt.Fprintf(w, "Remaining: %d\n", s.RemainingCredits)
}
