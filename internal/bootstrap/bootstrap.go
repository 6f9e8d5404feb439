package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/documind/internal/config"
	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
	"github.com/kirillkom/documind/internal/core/usecase"
	"github.com/kirillkom/documind/internal/infrastructure/chunking"
	"github.com/kirillkom/documind/internal/infrastructure/embedding/deterministic"
	"github.com/kirillkom/documind/internal/infrastructure/extractor"
	"github.com/kirillkom/documind/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/documind/internal/infrastructure/queue/inprocess"
	"github.com/kirillkom/documind/internal/infrastructure/queue/nats"
	"github.com/kirillkom/documind/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/documind/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/documind/internal/infrastructure/resilience"
	"github.com/kirillkom/documind/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/documind/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Projects  ports.ProjectService
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Processor ports.DocumentProcessor
	Query     ports.DocumentQueryService

	// Queue is set only in nats ingestion mode.
	Queue *nats.Queue

	Registry         *prometheus.Registry
	HTTPMetrics      *metrics.HTTPServerMetrics
	IngestionMetrics *metrics.IngestionMetrics
	BreakerMetrics   *metrics.BreakerMetrics

	closers []func(context.Context) error
}

// Jobs dropped by the in-process dispatcher at shutdown end up failed.
var _ inprocess.FailureRecorder = (*usecase.ProcessDocumentUseCase)(nil)

type stores struct {
	projects  ports.ProjectRepository
	documents ports.DocumentRepository
	vectors   ports.VectorStore
}

// New wires the application for cfg. service labels exported metrics.
func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	app := &App{Config: cfg, Registry: metrics.NewRegistry()}
	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service, app.Registry)
	app.IngestionMetrics = metrics.NewIngestionMetrics(service, app.Registry)
	app.BreakerMetrics = metrics.NewBreakerMetrics(service, app.Registry)

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: cfg.ResilienceRetryMaxAttempts,
		BreakerEnabled:   cfg.ResilienceBreakerEnabled,
	}, resilience.WithStateListener(func(operation string, _, to gobreaker.State) {
		app.BreakerMetrics.StateChanged(operation, int(to), to.String())
	}))

	embedder, ollamaClient, err := newEmbedder(cfg, exec)
	if err != nil {
		return nil, err
	}

	st, err := app.openStores(ctx, cfg, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath, cfg.StoragePublicURL)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	if ollamaClient == nil {
		ollamaClient = ollama.New(cfg.OllamaURL, cfg.OllamaTimeout(), exec)
	}
	generator := ollama.NewGenerator(ollamaClient, cfg.GenerationModels, domain.GenerationParams{
		Temperature:     cfg.GenTemperature,
		TopP:            cfg.GenTopP,
		TopK:            cfg.GenTopK,
		MaxOutputTokens: cfg.GenMaxOutputTokens,
	})

	processUC := usecase.NewProcessDocumentUseCase(
		st.documents,
		storage,
		extractor.NewDefaultRegistry(),
		chunker,
		embedder,
		st.vectors,
		usecase.WithEmbedConcurrency(cfg.EmbedConcurrency),
	)

	trigger, err := app.newTrigger(cfg, processUC, exec)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.Projects = usecase.NewProjectUseCase(st.projects)
	app.Documents = usecase.NewDocumentQueryUseCase(st.projects, st.documents)
	app.Ingestor = usecase.NewIngestDocumentUseCase(st.projects, st.documents, storage, trigger)
	app.Processor = processUC
	app.Query = usecase.NewQueryUseCase(st.projects, st.documents, embedder, st.vectors, generator, cfg.RAGTopK, cfg.ProductName)

	slog.Info("application_wired",
		"service", service,
		"store", cfg.StoreBackend,
		"ingest_mode", cfg.IngestMode,
		"embedding_provider", cfg.EmbeddingProvider,
		"embedding_dimension", embedder.Dimension(),
		"generation_models", cfg.GenerationModels,
	)
	return app, nil
}

func newEmbedder(cfg config.Config, exec *resilience.Executor) (ports.Embedder, *ollama.Client, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingDeterministic:
		return deterministic.NewEmbedder(cfg.EmbeddingDimension, cfg.EmbeddingMaxChars), nil, nil
	case config.EmbeddingOllama:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaTimeout(), exec)
		return ollama.NewEmbedder(client, cfg.OllamaEmbedModel, cfg.EmbeddingDimension, cfg.EmbeddingMaxChars), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func (a *App) openStores(ctx context.Context, cfg config.Config, dimension int) (stores, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		if err := postgres.EnsureSchema(ctx, db, dimension); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("ensure schema: %w", err)
		}
		return stores{
			projects:  postgres.NewProjectRepository(db),
			documents: postgres.NewDocumentRepository(db),
			vectors:   postgres.NewChunkRepository(db, cfg.RAGTopK),
		}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.RAGTopK)
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return stores{projects: store, documents: store, vectors: store}, nil
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (a *App) newTrigger(cfg config.Config, processor inprocess.Processor, exec *resilience.Executor) (ports.IngestionTrigger, error) {
	switch cfg.IngestMode {
	case config.IngestInProcess:
		dispatcher := inprocess.New(processor, inprocess.Options{
			Workers:  cfg.IngestWorkers,
			Timeout:  cfg.IngestTimeout(),
			Observer: a.IngestionMetrics,
		})
		a.closers = append(a.closers, dispatcher.Close)
		return dispatcher, nil
	case config.IngestNATS:
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: exec})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.Queue = queue
		a.closers = append(a.closers, func(context.Context) error {
			queue.Close()
			return nil
		})
		return queue, nil
	default:
		return nil, fmt.Errorf("unknown ingestion mode %q", cfg.IngestMode)
	}
}

// Close releases resources in reverse order of acquisition. In-process
// ingestion jobs get until ctx expires to finish.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ShutdownContext bounds the time Close may spend draining work.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
