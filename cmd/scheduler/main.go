package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
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

// The scheduler owns the periodic maintenance of the catalog: sweeping
// builds stuck in Running and redeclaring indexes whose data has aged out.
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

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cat.Close()

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

	completer := lifecycle.NewCompleter(cat, bus, logger)

	// Refresh declarations need a dispatcher. In queue mode they go to the
	// worker stream; otherwise this process runs the builds itself.
	var (
		dispatcher lifecycle.Dispatcher
		inFlight   func(int64) bool
	)
	switch cfg.Dispatch.Mode {
	case "queue":
		dispatcher = dispatch.NewQueue(vkClient, cfg.Dispatch.Stream, logger)
	default:
		local := dispatch.NewLocal(newBuilder(cfg, logger), completer, cfg.Dispatch.JobTimeout, logger)
		defer local.Close()
		dispatcher = local
		inFlight = local.InFlight
	}

	engine := lifecycle.NewEngine(cat, dispatcher, logger)

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Error("failed to create scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Scheduler.SweepInterval),
		gocron.NewTask(func() {
			n, err := completer.SweepStale(ctx, cfg.Scheduler.StaleAfter, inFlight)
			if err != nil {
				logger.Error("stale sweep failed", slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				logger.Info("stale sweep complete", slog.Int("failed", n))
			}
		}),
		gocron.WithName("sweep-stale"),
	)
	if err != nil {
		logger.Error("failed to schedule stale sweep", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Scheduler.RefreshMaxAge > 0 {
		_, err = sched.NewJob(
			gocron.CronJob(cfg.Scheduler.RefreshCron, false),
			gocron.NewTask(func() {
				n, err := engine.RefreshAging(ctx, cfg.Scheduler.RefreshMaxAge)
				if err != nil {
					logger.Error("refresh pass failed", slog.String("error", err.Error()))
					return
				}
				logger.Info("refresh pass complete", slog.Int("redeclared", n))
			}),
			gocron.WithName("refresh-aging"),
		)
		if err != nil {
			logger.Error("failed to schedule refresh", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("refresh enabled",
			slog.String("cron", cfg.Scheduler.RefreshCron),
			slog.Duration("max_age", cfg.Scheduler.RefreshMaxAge))
	}

	sched.Start()
	logger.Info("scheduler started", slog.Duration("sweep_interval", cfg.Scheduler.SweepInterval))

	<-ctx.Done()
	logger.Info("shutting down scheduler")

	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("scheduler stopped")
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
	return nil, fmt.Errorf("catalog driver %q cannot back the scheduler; use postgres or sqlite", cfg.Catalog.Driver)
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
		if vkClient == nil {
			logger.Warn("valkey unavailable, using in-process bus")
			return notify.NewMemory(topics)
		}
		return notify.NewValkey(vkClient, topics, logger)
	}
	return notify.NewMemory(topics)
}

func newBuilder(cfg *config.Config, logger *slog.Logger) *dispatch.Builder {
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
	return dispatch.NewBuilder(toolset, dispatch.NewExecRunner(logger), fetcher, search.NewClient(cfg.Search), cfg.Dispatch.WorkDir, logger)
}
