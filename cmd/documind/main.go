package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/documind/internal/bootstrap"
	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/core/ports"
	"github.com/kirillkom/documind/internal/observability/logging"
)

var version = "dev"

// services is what the commands need from a wired application.
type services struct {
	projects  ports.ProjectService
	ingestor  ports.DocumentIngestor
	documents ports.DocumentReader
	query     ports.DocumentQueryService
	close     func() error
}

// openServices is replaced in tests.
var openServices = func(ctx context.Context) (*services, error) {
	// A .env in the working directory fills unset variables only.
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.InstallStderr("cli", cfg.LogLevel)

	app, err := bootstrap.New(ctx, cfg, "cli")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &services{
		projects:  app.Projects,
		ingestor:  app.Ingestor,
		documents: app.Documents,
		query:     app.Query,
		close: func() error {
			closeCtx, cancel := bootstrap.ShutdownContext()
			defer cancel()
			return app.Close(closeCtx)
		},
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "documind",
		Short:         "Ask questions about your documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path != "" {
				return os.Setenv("CONFIG_FILE", path)
			}
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(
		newProjectCmd(),
		newIngestCmd(),
		newDocsCmd(),
		newStatusCmd(),
		newAskCmd(),
		newMCPCmd(),
	)
	return root
}

// withServices opens the application for one command and closes it after.
func withServices(cmd *cobra.Command, fn func(*services) error) error {
	svc, err := openServices(cmd.Context())
	if err != nil {
		return err
	}
	runErr := fn(svc)
	if svc.close != nil {
		if err := svc.close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}
