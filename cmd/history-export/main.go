package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"homebudget/internal/amqp"
	"homebudget/internal/cli"
	"homebudget/internal/config"
	"homebudget/internal/docstore/sqlite"
	"homebudget/internal/export/sheets"
	"homebudget/internal/log"
	"homebudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidate((*config.Config).ValidateExporter)
	logger := cli.SetupLogger(cfg, os.Stdout)
	logger = logger.WithComponent(log.ComponentWorker)

	logger.Info("Starting history-export")

	// The exporter reads the same database the server writes; it never
	// publishes, so the store is opened without a change feed.
	store, err := sqlite.NewStore(cfg.SQLiteDBPath, logger)
	if err != nil {
		logger.Error("Failed to open SQLite store", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	sheetsClient, err := sheets.NewClient(context.Background(), sheets.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}

	feed, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.InstanceID)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer feed.Close()

	exportWorker := worker.NewExportWorker(store, sheets.NewExporter(sheetsClient, cfg.GoogleSheetName))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Archives written while the worker was down never produced a message.
	logger.Info("Performing startup export")
	if err := exportWorker.ExportAll(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.ConsumeDocumentChanges(gctx, exportWorker.HandleChange)
	})
	g.Go(func() error {
		return exportWorker.Run(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("History export stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("History export stopped")
}
