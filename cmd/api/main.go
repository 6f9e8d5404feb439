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

	httpadapter "github.com/kirillkom/documind/internal/adapters/http"
	"github.com/kirillkom/documind/internal/bootstrap"
	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logging.Install("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer func() {
		closeCtx, cancel := bootstrap.ShutdownContext()
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Printf("api close error: %v", err)
		}
	}()

	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Projects:  app.Projects,
		Ingestor:  app.Ingestor,
		Documents: app.Documents,
		Query:     app.Query,
		Metrics:   app.HTTPMetrics,
	})
	if err != nil {
		log.Fatalf("router error: %v", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
