package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/sheets/memory"
	"ledger/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, os.Stdout).WithComponent(log.ComponentWorker)

	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Configuration validation failed",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}

	logger.Info("Starting ledger-worker", "queue", cfg.AMQPQueue, "dry_run", cfg.MirrorDryRun)

	ctx, stop := cli.SignalContext()
	defer stop()

	sink, err := newSink(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize mirror sink",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeNetwork).ToSlice()...)
		os.Exit(1)
	}

	mirror := worker.NewMirrorWorker(consumer, sink)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mirror.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, closing AMQP connection")
		if err := consumer.Close(); err != nil {
			logger.Warn("Failed to close AMQP connection", log.FieldError, err.Error())
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}

	if dry, ok := sink.(*memory.Store); ok {
		logger.Info("Dry run finished", log.FieldCount, len(dry.Expenses()))
	}
	logger.Info("Worker shutdown complete")
}

// newSink returns the Google Sheets appender, or an in-memory one for dry runs.
func newSink(ctx context.Context, logger *log.Logger, cfg *config.Config) (sheets.ExpenseAppender, error) {
	if cfg.MirrorDryRun {
		logger.Info("Dry run: mirrored expenses are kept in memory")
		return memory.New(), nil
	}

	client, err := gsheet.NewClient(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.WithComponent(log.ComponentSheets).Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
