// Package cli provides common CLI initialization utilities shared by
// cmd/ledger and cmd/ledger-worker.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledger/internal/amqp"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default. Pass os.Stderr when stdout carries the stdio transport.
func SetupLogger(cfg *config.Config, w io.Writer) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.DefaultConfig().Level
	}
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Writer:    w,
	})
	log.SetDefault(logger)
	return logger
}

// LogWriter is where a process using transport should log.
func LogWriter(transport string) io.Writer {
	if transport == config.TransportStdio {
		return os.Stderr
	}
	return os.Stdout
}

// LoadAndValidateConfig loads configuration and validates it.
// Exits the process on failure; no logger exists yet, so the error goes to stderr.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		_, _ = io.WriteString(os.Stderr, "Configuration error: "+err.Error()+"\n")
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the ledger database, creating and migrating it as needed.
// Exits the process on failure.
func InitStore(ctx context.Context, logger *log.Logger, dbPath string) *storage.SQLiteStore {
	store, err := storage.Open(ctx, dbPath)
	if err != nil {
		logger.Error("Failed to open ledger database",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeDatabase).With("path", dbPath).ToSlice()...)
		os.Exit(1)
	}
	logger.Info("Ledger database ready", "path", dbPath)
	return store
}

// InitPublisher connects the mirror publisher. It returns a nil interface
// when AMQP is not configured or unreachable, which disables mirroring
// without failing the ledger.
func InitPublisher(logger *log.Logger, cfg *config.Config) services.Publisher {
	logger = logger.WithComponent(log.ComponentAMQP)
	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, mirroring disabled")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, mirroring disabled",
			log.NewFields().WithError(err).WithErrorType(log.ErrorTypeNetwork).ToSlice()...)
		return nil
	}
	logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
