package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/currency"
	"github.com/invoiceworks/invoice-converter/internal/extract"
	"github.com/invoiceworks/invoice-converter/internal/pipeline"
	"github.com/invoiceworks/invoice-converter/internal/progress"
	"github.com/invoiceworks/invoice-converter/internal/repository"
	"github.com/invoiceworks/invoice-converter/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("db open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("db migrate failed", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, db, cfg.Database.HealthTimeout, logger); err != nil {
		logger.Error("db health failed", "error", err)
		os.Exit(1)
	}
	logger.Info("db.health.ok")

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		logger.Error("upload dir create failed", "dir", cfg.Server.UploadDir, "error", err)
		os.Exit(1)
	}

	jobs := repository.NewJobRepository(db, logger)
	files := repository.NewFileRepository(db, logger)

	hub := progress.NewHub(logger)

	// One breaker for the whole process: consecutive upstream failures trip
	// it across all jobs.
	breaker := currency.NewBreaker(cfg.Rates.MaxFailures)
	rates := currency.NewClient(cfg.Rates.BaseURL, cfg.Rates.Timeout, breaker, logger)

	extractor := extract.NewDocIntelClient(
		cfg.DocIntel.Endpoint,
		cfg.DocIntel.APIKey,
		cfg.DocIntel.Timeout,
		cfg.DocIntel.PollInterval,
		cfg.DocIntel.MinConfidence,
		logger,
	)

	runner := &pipeline.Runner{
		Jobs:     jobs,
		Extract:  pipeline.NewExtractStage(extractor, files, logger),
		Validate: pipeline.NewValidateStage(files, cfg.Pipeline.DefaultInvoiceDate, logger),
		Convert:  pipeline.NewConvertStage(rates, files, cfg.Pipeline.DefaultTargetCurrency, logger),
		Report:   pipeline.NewReportStage(logger),
		Notifier: hub,
		Timeout:  cfg.Pipeline.Timeout,
		Logger:   logger,
	}

	srv := server.New(cfg, jobs, files, runner, hub, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http.serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
