package main

import (
	"os"

	"ledger/internal/cli"
	"ledger/internal/gateway"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/taxonomy"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, cli.LogWriter(cfg.Transport))

	logger.Info("Starting ledger",
		log.FieldTransport, cfg.Transport,
		"db_path", cfg.DBPath,
		"categories_path", cfg.CategoriesPath)

	ctx, stop := cli.SignalContext()
	defer stop()

	store := cli.InitStore(ctx, logger, cfg.DBPath)
	publisher := cli.InitPublisher(logger, cfg)
	ledger := services.NewLedgerService(store, publisher)

	server := gateway.NewServer(ledger, taxonomy.NewFileReader(cfg.CategoriesPath), logger)
	checks := map[string]gateway.ReadinessCheck{"store": store.Ping}

	runErr := server.Run(ctx, cfg, checks)

	if err := ledger.Close(); err != nil {
		logger.Error("Failed to close ledger", log.FieldError, err.Error())
	}
	if runErr != nil {
		logger.Error("Ledger stopped with error", log.FieldError, runErr.Error())
		os.Exit(1)
	}

	logger.Info("Ledger shutdown complete")
}
