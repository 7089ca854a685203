package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/app"
)

func newMigrateCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the document store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Migrate(cmd.Context(), env.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Store %q is up to date\n", env.Config.StoreBackend)
			return nil
		},
	}
}
