package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/valkey-io/valkey-go"

	"github.com/geodex-labs/geodex/internal/api"
	"github.com/geodex-labs/geodex/internal/catalog"
	"github.com/geodex-labs/geodex/internal/catalog/memory"
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

	ctx := context.Background()

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cat.Close()

	// Valkey backs queue dispatch and the valkey notification bus. Queue mode
	// cannot run without it; the bus falls back to in-process delivery.
	var vkClient valkey.Client
	if cfg.Dispatch.Mode == "queue" || cfg.Bus.Driver == "valkey" {
		vkClient, err = vk.NewClient(cfg.Valkey)
		if err != nil {
			if cfg.Dispatch.Mode == "queue" {
				logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
				os.Exit(1)
			}
			logger.Warn("valkey connection failed", slog.String("error", err.Error()))
		} else {
			defer vkClient.Close()
			logger.Info("connected to valkey")
		}
	}

	bus := openBus(cfg, vkClient, logger)
	defer bus.Close()

	searchClient := search.NewClient(cfg.Search)
	if err := searchClient.Ping(ctx); err != nil {
		logger.Warn("search engine unreachable",
			slog.String("url", cfg.Search.URL),
			slog.String("error", err.Error()))
	}

	completer := lifecycle.NewCompleter(cat, bus, logger)

	var dispatcher lifecycle.Dispatcher
	switch cfg.Dispatch.Mode {
	case "queue":
		dispatcher = dispatch.NewQueue(vkClient, cfg.Dispatch.Stream, logger)
		logger.Info("dispatching builds to queue", slog.String("stream", cfg.Dispatch.Stream))
	default:
		local := dispatch.NewLocal(newBuilder(cfg, searchClient, logger), completer, cfg.Dispatch.JobTimeout, logger)
		defer local.Close()
		dispatcher = local
		logger.Info("dispatching builds in-process", slog.String("tools_dir", cfg.Dispatch.ToolsDir))
	}

	engine := lifecycle.NewEngine(cat, dispatcher, logger)

	router := api.NewRouter(logger, api.Deps{
		Catalog: cat,
		Engine:  engine,
		Bus:     bus,
		Search:  searchClient,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting API server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
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
	case "memory":
		logger.Info("catalog ready", slog.String("driver", "memory"))
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown catalog driver %q", cfg.Catalog.Driver)
}

// openBus never fails hard: notifications are best-effort, so a broken broker
// degrades to the in-process bus instead of blocking startup.
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
		if vkClient == nil {
			logger.Warn("valkey unavailable, using in-process bus")
			return notify.NewMemory(topics)
		}
		return notify.NewValkey(vkClient, topics, logger)
	}
	return notify.NewMemory(topics)
}

// newBuilder assembles the in-process build pipeline. MinIO is optional;
// without it s3:// data sources fail at fetch time.
func newBuilder(cfg *config.Config, counter dispatch.DocumentCounter, logger *slog.Logger) *dispatch.Builder {
	fetcher := dispatch.NewFetcher(nil)
	if mc, err := minioclient.NewClient(cfg.MinIO); err != nil {
		logger.Warn("minio client init failed, s3 sources disabled", slog.String("error", err.Error()))
	} else {
		fetcher = dispatch.NewFetcher(mc)
	}

	toolset := dispatch.Toolset{
		ToolsDir:  cfg.Dispatch.ToolsDir,
		SearchURL: cfg.Search.URL,
	}
	return dispatch.NewBuilder(toolset, dispatch.NewExecRunner(logger), fetcher, counter, cfg.Dispatch.WorkDir, logger)
}
