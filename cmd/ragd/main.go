// Command ragd is the composition root for the RAG service: it loads
// configuration, opens the Postgres connection pool, builds the model
// backend clients, and wires the processor/retrieval/convstore/agent/cache
// stack together. Grounded on the teacher's examples/deployment/
// single_binary/main.go for the App-struct lifecycle shape (init* methods,
// signal-driven graceful shutdown) but trimmed to what SPEC_FULL.md §6
// keeps in scope: HTTP routing, health probes, and metrics exposition are
// out of scope here, so this binary wires collaborators and blocks until
// told to stop rather than serving requests.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/agent"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/cache"
	_ "github.com/Ace-Of-Snakes/agent-rag-env/internal/cache/providers/inmemory"
	_ "github.com/Ace-Of-Snakes/agent-rag-env/internal/cache/providers/rediscache"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/config"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/convstore"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/embedder"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/llmclient"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/obs"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/processor"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/retrieval"
	"github.com/Ace-Of-Snakes/agent-rag-env/internal/vision"
)

// App holds every collaborator this service wires together. cmd/ragd's
// own (not-yet-written) server layer would hang HTTP handlers off these
// fields; for now it exists to prove the wiring compiles end to end.
type App struct {
	cfg *config.Config

	logger        *slog.Logger
	meterProvider *sdkmetric.MeterProvider

	db *sql.DB

	textLLM   *llmclient.Client
	visionLLM *llmclient.Client
	embed     *embedder.Client

	processor  *processor.Processor
	retrieval  *retrieval.Store
	convstore  *convstore.Store
	orchestrator *agent.Orchestrator
	respCache  *cache.ResponseCache
}

// NewApp loads configuration and builds every collaborator. The returned
// App owns the database connection and meter provider; callers must call
// Shutdown.
func NewApp(ctx context.Context, configName string, configPaths []string) (*App, error) {
	cfg, err := config.Load(configName, configPaths)
	if err != nil {
		return nil, fmt.Errorf("ragd: load config: %w", err)
	}

	app := &App{cfg: cfg}
	app.logger = obs.NewLogger(slog.LevelInfo)
	slog.SetDefault(app.logger)

	app.meterProvider = sdkmetric.NewMeterProvider()
	meter := app.meterProvider.Meter("ragd")

	if err := app.openDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.buildModelClients(meter); err != nil {
		return nil, err
	}
	if err := app.buildDomainStack(meter); err != nil {
		return nil, err
	}
	if err := app.buildCache(meter); err != nil {
		return nil, err
	}
	app.buildAgent(meter)

	app.logger.Info("ragd wired", "cache_provider", cfg.CacheProvider, "cache_enabled", cfg.CacheEnabled)
	return app, nil
}

func (app *App) openDatabase(ctx context.Context) error {
	if app.cfg.PostgresDSN == "" {
		return fmt.Errorf("ragd: postgres_dsn is required")
	}
	db, err := sql.Open("postgres", app.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("ragd: open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("ragd: ping postgres: %w", err)
	}
	app.db = db
	return nil
}

func (app *App) buildModelClients(meter metric.Meter) error {
	llmMetrics, err := obs.NewComponentMetrics(meter, "llmclient")
	if err != nil {
		return fmt.Errorf("ragd: llmclient metrics: %w", err)
	}
	embedMetrics, err := obs.NewComponentMetrics(meter, "embedder")
	if err != nil {
		return fmt.Errorf("ragd: embedder metrics: %w", err)
	}

	cfg := app.cfg
	app.textLLM = llmclient.New(cfg.ModelBackendURL, cfg.TextModel,
		llmclient.WithTemperature(cfg.Temperature),
		llmclient.WithTopP(cfg.TopP),
		llmclient.WithMaxTokens(cfg.MaxTokens),
		llmclient.WithKeepAlive(cfg.KeepAlive),
		llmclient.WithMetrics(llmMetrics),
	)
	app.visionLLM = llmclient.New(cfg.ModelBackendURL, cfg.VisionModel,
		llmclient.WithKeepAlive(cfg.KeepAlive),
		llmclient.WithMetrics(llmMetrics),
	)
	app.embed = embedder.New(cfg.ModelBackendURL, cfg.EmbeddingModel,
		embedder.WithBatchSize(cfg.EmbeddingBatchSize),
		embedder.WithKeepAlive(cfg.KeepAlive),
		embedder.WithMetrics(embedMetrics),
	)
	return nil
}

func (app *App) buildDomainStack(meter metric.Meter) error {
	cfg := app.cfg

	visionMetrics, err := obs.NewComponentMetrics(meter, "vision")
	if err != nil {
		return fmt.Errorf("ragd: vision metrics: %w", err)
	}
	describer := vision.New(app.visionLLM, vision.WithMetrics(visionMetrics))

	processorMetrics, err := obs.NewComponentMetrics(meter, "processor")
	if err != nil {
		return fmt.Errorf("ragd: processor metrics: %w", err)
	}
	app.processor = processor.New(describer, app.embed, app.textLLM,
		processor.WithChunkSize(cfg.ChunkSize),
		processor.WithChunkOverlap(cfg.ChunkOverlap),
		processor.WithMetrics(processorMetrics),
	)

	retrievalMetrics, err := obs.NewComponentMetrics(meter, "retrieval")
	if err != nil {
		return fmt.Errorf("ragd: retrieval metrics: %w", err)
	}
	app.retrieval = retrieval.New(app.db, retrieval.WithMetrics(retrievalMetrics))

	convstoreMetrics, err := obs.NewComponentMetrics(meter, "convstore")
	if err != nil {
		return fmt.Errorf("ragd: convstore metrics: %w", err)
	}
	app.convstore = convstore.New(app.db,
		convstore.WithTitleGenerator(app.textLLM),
		convstore.WithMetrics(convstoreMetrics),
	)
	return nil
}

func (app *App) buildCache(meter metric.Meter) error {
	cfg := app.cfg
	if !cfg.CacheEnabled {
		app.respCache = nil
		return nil
	}

	cacheMetrics, err := obs.NewComponentMetrics(meter, "cache")
	if err != nil {
		return fmt.Errorf("ragd: cache metrics: %w", err)
	}

	backend, err := cache.New(cfg.CacheProvider, cache.Config{
		TTL:       cfg.CacheTTL,
		RedisAddr: cfg.RedisAddr,
	})
	if err != nil {
		return fmt.Errorf("ragd: build cache backend %q: %w", cfg.CacheProvider, err)
	}
	app.respCache = cache.NewResponseCache(backend, cfg.CacheTTL, cacheMetrics)
	return nil
}

func (app *App) buildAgent(meter metric.Meter) {
	agentMetrics, _ := obs.NewComponentMetrics(meter, "agent")

	registry := agent.NewRegistry()
	registry.Register(agent.NewRAGSearchTool(app.retrieval, app.embed))
	registry.Register(agent.NewFileReaderTool(app.retrieval))
	registry.Register(agent.NewWebSearchTool(nil, app.cfg.SearchTopK))

	app.orchestrator = agent.New(app.textLLM, registry,
		agent.WithMaxIterations(app.cfg.MaxToolIterations),
		agent.WithMetrics(agentMetrics),
	)
}

// Shutdown closes the database connection and flushes the meter provider.
func (app *App) Shutdown(ctx context.Context) error {
	var errs []error
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if app.meterProvider != nil {
		if err := app.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	for _, err := range errs {
		app.logger.Error("shutdown error", "error", err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, "ragd", []string{".", "/etc/ragd"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragd: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	app.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		os.Exit(1)
	}
}
