package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/financio/internal/api/handlers"
	"github.com/dvloznov/financio/internal/api/middleware"
	"github.com/dvloznov/financio/internal/app"
	"github.com/dvloznov/financio/internal/config"
	"github.com/dvloznov/financio/internal/docstore"
	"github.com/dvloznov/financio/internal/logger"
)

type storeOpener func(ctx context.Context, cfg *config.Config) (docstore.Store, error)

func main() {
	cfg := config.Load()

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log, app.OpenStore); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		stop()
		os.Exit(1)
	}

	log.Info().Msg("Server exited")
}

// run serves the API until ctx is cancelled. The store is closed on every
// return path.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, openStore storeOpener) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	orchestrator, err := app.NewOrchestrator(ctx, cfg, store)
	if err != nil {
		return fmt.Errorf("create analysis orchestrator: %w", err)
	}

	// Initialize handlers
	analysesHandler := handlers.NewAnalysesHandler(orchestrator, app.NewRecords(cfg, store))
	creditsHandler := handlers.NewCreditsHandler(app.NewLedger(cfg, store))

	mux := http.NewServeMux()
	handlers.Register(mux, analysesHandler, creditsHandler)

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.RequestID(log),
		middleware.CORS,
	)

	// The analysis call waits on the generative-text service, so the write
	// timeout is generous.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
