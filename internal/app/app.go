package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"MindMapService/internal/config"
	"MindMapService/internal/embedder"
	"MindMapService/internal/infrastructure/embedding"
	"MindMapService/internal/infrastructure/readinglist"
	"MindMapService/internal/infrastructure/scheduler"
	"MindMapService/internal/infrastructure/scraper"
	"MindMapService/internal/infrastructure/storage"
	"MindMapService/internal/logging"
	"MindMapService/internal/metrics"
	"MindMapService/internal/ports"
	"MindMapService/internal/server"
	"MindMapService/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.SnapshotStore
	scheduler *usecase.Scheduler
	http      *http.Server
}

// New builds the runnable application. The caller owns ctx only for the duration of setup.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	collector := metrics.NewCollector("mindmap")

	registry, err := registerBackends(cfg.Embedding, baseLogger.With("component", "embedding"))
	if err != nil {
		return nil, err
	}
	backend, err := registry.Resolve(cfg.Embedding.Backend)
	if err != nil {
		return nil, fmt.Errorf("resolve embedding backend: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	source := readinglist.NewFileSource(cfg.Source.ReadingListPath, baseLogger.With("component", "readinglist"))
	fetcher := scraper.NewFetcher(nil, scraper.Options{
		Timeout:          cfg.Scraping.Timeout,
		MaxContentLength: cfg.Scraping.MaxContentLength,
		Delay:            cfg.Scraping.Delay,
		Concurrency:      cfg.Scraping.Concurrency,
		UserAgent:        cfg.Scraping.UserAgent,
		MaxBodyBytes:     cfg.Scraping.MaxBodyBytes,
	}, baseLogger.With("component", "scraper")).WithObserver(collector)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:   source,
		Fetcher:  fetcher,
		Backend:  backend,
		Store:    store,
		Observer: collector,
		Logger:   baseLogger.With("component", "pipeline"),
		Settings: usecase.SettingsFromConfig(cfg),
	})

	handler := server.Handler(server.Deps{
		Pipeline:       pipeline,
		Store:          store,
		Source:         source,
		Registry:       registry,
		Metrics:        collector,
		Logger:         baseLogger.With("component", "http"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Components: map[string]string{
			"embedding":  backend.Name(),
			"storage":    cfg.Storage.Driver,
			"clustering": cfg.Clustering.Method,
		},
	})

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		store:  store,
		scheduler: usecase.NewScheduler(
			scheduler.NewIntervalScheduler(cfg.Scheduler.Interval),
			pipeline,
			baseLogger.With("component", "scheduler"),
		),
		http: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.Server.WriteTimeout,
		},
	}, nil
}

// registerBackends registers every backend whose configuration is complete. A backend that
// cannot be built is skipped unless it is the selected one, whose error is returned.
func registerBackends(cfg config.EmbeddingConfig, log *slog.Logger) (*embedder.Registry, error) {
	registry := embedder.NewRegistry()
	registry.Register(embedding.NewHashingBackend(cfg.Hashing.Dimensions))

	local, err := embedding.NewLocalBackend(cfg.Local, embedding.NewBreaker("local", cfg.Breaker, log))
	switch {
	case err == nil:
		registry.Register(local)
	case cfg.Backend == "local":
		return nil, fmt.Errorf("build local embedding backend: %w", err)
	default:
		log.Warn("local embedding backend disabled", "error", err)
	}

	openai, err := embedding.NewOpenAIBackend(cfg.OpenAI, embedding.NewBreaker("openai", cfg.Breaker, log))
	switch {
	case err == nil:
		registry.Register(openai)
	case cfg.Backend == "openai":
		return nil, fmt.Errorf("build openai embedding backend: %w", err)
	default:
		log.Info("openai embedding backend disabled", "error", err)
	}
	return registry, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close snapshot store", "error", err)
		}
	}()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown http: %w", err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop scheduler: %w", err))
	}
	a.logger.Info("application stopped")
	return runErr
}
