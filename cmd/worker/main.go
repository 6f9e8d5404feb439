package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/documind/internal/bootstrap"
	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Install("worker", cfg.LogLevel)
	if cfg.IngestMode != config.IngestNATS {
		log.Fatalf("worker requires INGEST_MODE=%s, got %q", config.IngestNATS, cfg.IngestMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer func() {
		closeCtx, cancel := bootstrap.ShutdownContext()
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Printf("worker close error: %v", err)
		}
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.IngestionMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Queue.Subscribe(ctx, func(handlerCtx context.Context, documentID int64) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.IngestTimeout())
		defer cancel()

		app.IngestionMetrics.IngestionStarted()
		started := time.Now()
		err := app.Processor.ProcessByID(processCtx, documentID)
		app.IngestionMetrics.IngestionFinished(time.Since(started), err)
		return err
	})
	if err != nil {
		log.Printf("worker subscribe error: %v", err)
	}
}
