package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/valkey-io/valkey-go"

	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/catalog/postgres"
	"github.com/geodex-labs/geodex/internal/catalog/sqlite"
	"github.com/geodex-labs/geodex/internal/config"
	"github.com/geodex-labs/geodex/internal/dispatch"
	"github.com/geodex-labs/geodex/internal/lifecycle"
	"github.com/geodex-labs/geodex/internal/notify"
	"github.com/geodex-labs/geodex/internal/search"
	minioclient "github.com/geodex-labs/geodex/internal/store/minio"
	vk "github.com/geodex-labs/geodex/internal/store/valkey"
)

func main() {
	_ = godotenv.Load(".env") // ignore error if .env missing

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog. Workers share state with the API through it, so the
	// process-local memory driver is not an option here.
	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cat.Close()

	// Valkey carries the build stream; a worker is useless without it.
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// MinIO (optional, s3:// data sources)
	fetcher := dispatch.NewFetcher(nil)
	if mc, err := minioclient.NewClient(cfg.MinIO); err != nil {
		logger.Warn("minio client init failed, s3 sources disabled", slog.String("error", err.Error()))
	} else {
		fetcher = dispatch.NewFetcher(mc)
	}

	searchClient := search.NewClient(cfg.Search)
	if err := searchClient.Ping(ctx); err != nil {
		logger.Warn("search engine unreachable",
			slog.String("url", cfg.Search.URL),
			slog.String("error", err.Error()))
	}

	bus := openBus(cfg, vkClient, logger)
	defer bus.Close()

	completer := lifecycle.NewCompleter(cat, bus, logger)

	toolset := dispatch.Toolset{
		ToolsDir:  cfg.Dispatch.ToolsDir,
		SearchURL: cfg.Search.URL,
	}
	builder := dispatch.NewBuilder(toolset, dispatch.NewExecRunner(logger), fetcher, searchClient, cfg.Dispatch.WorkDir, logger)
	worker := dispatch.NewWorker(cat, builder, completer, cfg.Dispatch.JobTimeout, logger)

	// Distinct consumer names keep replicas from claiming each other's
	// pending stream entries.
	consumerID := "worker-" + uuid.NewString()[:8]
	consumer := dispatch.NewConsumer(vkClient, cfg.Dispatch.Stream, cfg.Dispatch.Group, consumerID, logger)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Claims left Running by a crashed worker never finish on their own;
	// clear the old ones before taking new jobs.
	if n, err := completer.SweepStale(ctx, cfg.Scheduler.StaleAfter, nil); err != nil {
		logger.Warn("startup sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("cleared stale builds", slog.Int("count", n))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting build worker, consuming from stream",
			slog.String("stream", cfg.Dispatch.Stream),
			slog.String("consumer", consumerID))
		if err := consumer.Consume(ctx, worker.Handle); err != nil {
			if ctx.Err() == nil {
				logger.Error("consumer error", slog.String("error", err.Error()))
			}
		}
	}()

	wg.Wait()
	logger.Info("worker stopped")
}

func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Catalog, error) {
	switch cfg.Catalog.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		cat := postgres.New(pool)
		if err := cat.EnsureSchema(ctx); err != nil {
			cat.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("catalog ready", slog.String("driver", "postgres"))
		return cat, nil
	case "sqlite":
		cat, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite catalog: %w", err)
		}
		logger.Info("catalog ready", slog.String("driver", "sqlite"), slog.String("path", cfg.SQLite.Path))
		return cat, nil
	}
	return nil, fmt.Errorf("catalog driver %q cannot back a worker; use postgres or sqlite", cfg.Catalog.Driver)
}

func openBus(cfg *config.Config, vkClient valkey.Client, logger *slog.Logger) notify.Bus {
	topics := notify.Topics{Prefix: cfg.Bus.Prefix, Granularity: cfg.Bus.Granularity}

	switch cfg.Bus.Driver {
	case "nats":
		bus, err := notify.NewNATS(cfg.NATS.URL, topics, logger)
		if err != nil {
			logger.Warn("nats connection failed, using in-process bus", slog.String("error", err.Error()))
			return notify.NewMemory(topics)
		}
		logger.Info("connected to nats", slog.String("url", cfg.NATS.URL))
		return bus
	case "valkey":
		return notify.NewValkey(vkClient, topics, logger)
	}
	return notify.NewMemory(topics)
}
