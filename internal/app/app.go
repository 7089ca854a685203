// Package app builds the configured components for the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/financio/internal/advisor"
	"github.com/dvloznov/financio/internal/config"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/docstore/memory"
	"github.com/dvloznov/financio/internal/gcs"
	"github.com/dvloznov/financio/internal/history"
	infraBQ "github.com/dvloznov/financio/internal/infra/bigquery"
	"github.com/dvloznov/financio/internal/infra/sqlite"
	"github.com/dvloznov/financio/internal/logger"
	"github.com/dvloznov/financio/internal/mailer"
	"github.com/dvloznov/financio/internal/pipeline"
	"github.com/dvloznov/financio/internal/records"
	"github.com/dvloznov/financio/internal/report"
)

// OpenStore opens the document store selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	log := logger.FromContext(ctx)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Info().Msg("Initialized memory store")
		return memory.New(), nil
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Str("db_path", cfg.SQLiteDBPath).Msg("Initialized SQLite store")
		return store, nil
	case config.BackendBigQuery:
		store, err := infraBQ.NewStore(ctx, cfg.GCPProjectID, cfg.DatabaseID)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		log.Info().Str("project", cfg.GCPProjectID).Str("dataset", cfg.DatabaseID).Msg("Initialized BigQuery store")
		return store, nil
	default:
		return nil, fmt.Errorf("OpenStore: unsupported store backend %q", cfg.StoreBackend)
	}
}

// Migrate prepares the configured backend's schema.
func Migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return nil
	case config.BackendSQLite:
		if err := sqlite.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
		return nil
	case config.BackendBigQuery:
		store, err := infraBQ.NewStore(ctx, cfg.GCPProjectID, cfg.DatabaseID)
		if err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
		defer store.Close()

		c := cfg.Collections
		if err := store.EnsureCollections(ctx, c.Transactions, c.Categories, c.Analyses, c.RateLimits, c.Users); err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("Migrate: unsupported store backend %q", cfg.StoreBackend)
	}
}

// NewLedger returns the credit ledger over store.
func NewLedger(cfg *config.Config, store docstore.Store) *credits.Ledger {
	return credits.NewLedger(store, cfg.Collections.RateLimits, cfg.FreeTierCredits)
}

// NewRecords returns the analysis record store over store.
func NewRecords(cfg *config.Config, store docstore.Store) *records.Store {
	return records.NewStore(store, cfg.Collections.Analyses)
}

// NewOrchestrator wires the analysis pipeline. It requires a Gemini API key.
func NewOrchestrator(ctx context.Context, cfg *config.Config, store docstore.Store) (*pipeline.Orchestrator, error) {
	if err := cfg.RequireAdvisor(); err != nil {
		return nil, fmt.Errorf("NewOrchestrator: %w", err)
	}
	client, err := advisor.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("NewOrchestrator: %w", err)
	}
	return NewOrchestratorWithAdvisor(cfg, store, client), nil
}

// NewOrchestratorWithAdvisor wires the analysis pipeline around client.
func NewOrchestratorWithAdvisor(cfg *config.Config, store docstore.Store, client advisor.Client) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(pipeline.Dependencies{
		Ledger:  NewLedger(cfg, store),
		History: history.NewSource(store, cfg.Collections.Transactions, cfg.Collections.Categories),
		Advisor: client,
		Records: NewRecords(cfg, store),
	})
}

// NewReportJob wires the weekly report. Emails go to the AMQP relay when
// AMQP_URL is set and are only logged otherwise; reports are archived when
// REPORT_BUCKET is set. The returned cleanup releases broker and storage
// connections.
func NewReportJob(ctx context.Context, cfg *config.Config, store docstore.Store) (*report.Job, func() error, error) {
	log := logger.FromContext(ctx)

	var (
		m       mailer.Mailer = mailer.LogMailer{}
		opts    []report.Option
		closers []func() error
	)
	cleanup := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if cfg.AMQPURL != "" {
		amqpMailer, err := mailer.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			return nil, nil, fmt.Errorf("NewReportJob: %w", err)
		}
		m = amqpMailer
		closers = append(closers, amqpMailer.Close)
		log.Info().Str("exchange", cfg.AMQPExchange).Msg("Initialized AMQP mailer")
	} else {
		log.Warn().Msg("No AMQP_URL configured - emails will only be logged")
	}

	if cfg.ReportBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			_ = cleanup()
			return nil, nil, fmt.Errorf("NewReportJob: storage client: %w", err)
		}
		closers = append(closers, client.Close)
		opts = append(opts, report.WithArchive(gcs.NewReportArchive(client, cfg.ReportBucket)))
		log.Info().Str("bucket", cfg.ReportBucket).Msg("Archiving reports to GCS")
	}

	job := report.NewJob(
		history.NewDirectory(store, cfg.Collections.Users),
		history.NewSource(store, cfg.Collections.Transactions, cfg.Collections.Categories),
		m,
		opts...,
	)
	return job, cleanup, nil
}
