// Package commands implements the financio command-line interface.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/config"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/logger"
)

// AdvisorFactory builds the generative-text client for analyze.
type AdvisorFactory func(ctx context.Context, cfg *config.Config) (advisor.Client, error)

// Env is what every command runs with.
type Env struct {
	Config     *config.Config
	Log        zerolog.Logger
	NewAdvisor AdvisorFactory
}

// GeminiAdvisor is the default AdvisorFactory.
func GeminiAdvisor(ctx context.Context, cfg *config.Config) (advisor.Client, error) {
	if err := cfg.RequireAdvisor(); err != nil {
		return nil, err
	}
	return advisor.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(env *Env) *cobra.Command {
	if env.NewAdvisor == nil {
		env.NewAdvisor = GeminiAdvisor
	}

	rootCmd := &cobra.Command{
		Use:   "financio",
		Short: "Credit-metered spending analysis and weekly reports",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Config.Validate(); err != nil {
				return err
			}
			cmd.SetContext(logger.WithContext(cmd.Context(), env.Log))
			return nil
		},
	}

	rootCmd.AddCommand(
		newAnalyzeCommand(env),
		newCreditsCommand(env),
		newAnalysesCommand(env),
		newReportCommand(env),
		newMigrateCommand(env),
	)

	return rootCmd
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, env *Env, fn func(ctx context.Context, store docstore.Store) error) error {
	ctx := cmd.Context()
	store, err := app.OpenStore(ctx, env.Config)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	return fn(ctx, store)
}
