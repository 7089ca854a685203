package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/config"
	"github.com/dvloznov/financio/internal/logger"
)

// Runs the weekly report once and exits. Scheduling is left to the caller
// (cron, Cloud Scheduler).
func main() {
	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	ctx = logger.WithContext(ctx, log)

	err := run(ctx, cfg, log)
	cancel()
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Weekly report finished with errors")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	job, cleanup, err := app.NewReportJob(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("set up weekly report: %w", err)
	}
	defer cleanup()

	log.Info().Msg("Starting weekly report job")

	res, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("%d of %d users failed: %w", len(res.Failures), res.Users, err)
	}

	log.Info().Int("sent", res.Sent).Int("skipped", res.Skipped).Msg("Weekly report completed")
	return nil
}
