package main

import (
	"context"
	"os"

	"github.com/dvloznov/financio/internal/commands"
	"github.com/dvloznov/financio/internal/config"
	"github.com/dvloznov/financio/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	rootCmd := commands.NewRootCommand(&commands.Env{Config: cfg, Log: log})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
