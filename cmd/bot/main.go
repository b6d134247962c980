package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-trader/internal/bot"
	"github.com/Proton-105/himera-trader/internal/cache"
	"github.com/Proton-105/himera-trader/internal/database"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/health"
	"github.com/Proton-105/himera-trader/internal/httpapi"
	"github.com/Proton-105/himera-trader/internal/httpx"
	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/internal/jobs"
	jobhandlers "github.com/Proton-105/himera-trader/internal/jobs/handlers"
	"github.com/Proton-105/himera-trader/internal/lifecycle"
	"github.com/Proton-105/himera-trader/internal/middleware"
	"github.com/Proton-105/himera-trader/internal/pricing"
	"github.com/Proton-105/himera-trader/internal/provider/aggregator"
	"github.com/Proton-105/himera-trader/internal/provider/binance"
	"github.com/Proton-105/himera-trader/internal/provider/coingecko"
	"github.com/Proton-105/himera-trader/internal/provider/hyperliquid"
	"github.com/Proton-105/himera-trader/internal/ratelimit"
	"github.com/Proton-105/himera-trader/internal/repository"
	"github.com/Proton-105/himera-trader/internal/state"
	"github.com/Proton-105/himera-trader/internal/user"
	"github.com/Proton-105/himera-trader/pkg/config"
	"github.com/Proton-105/himera-trader/pkg/graceful"
	"github.com/Proton-105/himera-trader/pkg/logger"
	"github.com/Proton-105/himera-trader/pkg/metrics"
	appredis "github.com/Proton-105/himera-trader/pkg/redis"
)

const (
	cacheJanitorInterval   = time.Minute
	rateLimitCleanInterval = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("himera trader exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			SampleRate:       cfg.Sentry.SampleRate,
			AttachStacktrace: true,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	log, logCloser := logger.New(cfg.Logger, cfg.Sentry.Enabled)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("starting himera trader",
		slog.String("env", cfg.AppEnv),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.String("http_addr", cfg.Server.Port),
	)

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log, 0)

	redisClient, err := appredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, running on in-memory cache and limits", slog.Any("error", err))
	}
	shutdown.Register(lifecycle.PhaseResources, "redis", func(context.Context) error { return redisClient.Close() })
	checker.AddOptional("redis", health.NewRedisChecker(redisClient))

	store := cache.New(appredis.NewMetricsClient(redisClient), log, cache.WithWriteTimeout(cfg.Pricing.WriteTimeout))
	go store.RunJanitor(ctx, cacheJanitorInterval)
	shutdown.Register(lifecycle.PhaseWorkers, "cache writes", func(context.Context) error {
		store.Wait()
		return nil
	})

	resolver := pricing.NewResolver(store, newProviders(cfg.Pricing), pricing.Config{
		TTL:          cfg.Pricing.CacheTTL,
		Aliases:      cfg.Pricing.Aliases,
		QuoteAsset:   cfg.Pricing.QuoteAsset,
		ReferenceIDs: cfg.Pricing.ReferenceIDs,
	}, log)
	config.Watch(v, log, func(p config.PricingConfig) { resolver.SetTTL(p.CacheTTL) })

	var users repository.UserRepository
	if cfg.Database.Enabled() {
		db, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		shutdown.Register(lifecycle.PhaseResources, "postgres", func(context.Context) error { return db.Close() })
		checker.AddOptional("postgres", health.NewDBChecker(db))
		users = user.NewService(repository.NewUserRepository(db, log), user.NewCache(redisClient.Client), user.DefaultTouchInterval, log)
	} else {
		log.Info("database not configured, user profiles disabled")
	}

	messages, err := i18n.Load(cfg.Bot.DefaultLanguage)
	if err != nil {
		return err
	}
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled, messages)

	memoryLimiter := ratelimit.NewMemoryLimiter(log)
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(redisClient.Client, log), memoryLimiter, log)
	go memoryLimiter.RunJanitor(ctx, rateLimitCleanInterval)

	state.RegisterTransitionRecorder(metrics.RecordStateTransition)
	dialogs := state.NewStateMachine(state.NewRedisStorage(redisClient.Client, state.DefaultStateTTL, log), redisClient.Client, log)

	tgBot, err := bot.New(cfg.Bot, log, bot.Deps{
		Prices:     resolver,
		Users:      users,
		Dialogs:    dialogs,
		Messages:   messages,
		ErrHandler: errHandler,
		RateLimit:  middleware.NewRateLimitMiddleware(limiter, ratelimit.NewRules(cfg.RateLimit), log),
	})
	if err != nil {
		return err
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(tgBot.Telebot()))
	go tgBot.Start()
	shutdown.Register(lifecycle.PhaseIngress, "telegram", func(context.Context) error {
		tgBot.Stop()
		return nil
	})

	var enqueuer httpapi.RefreshEnqueuer
	if cfg.Jobs.Enabled {
		manager, err := startJobs(cfg, resolver, shutdown, log)
		if err != nil {
			return err
		}
		enqueuer = manager
	}

	probes := lifecycle.NewProbes(checker, log)
	server := graceful.NewServer(log, &http.Server{
		Addr: cfg.Server.Port,
		Handler: httpapi.NewHandler(httpapi.Deps{
			Prices: resolver,
			Jobs:   enqueuer,
			Probes: probes,
		}, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, cfg.Server.ShutdownTimeout)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("http server stopped", slog.Any("error", err))
		}
		stop()
	}

	probes.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = shutdown.Execute(shutdownCtx)
	log.Info("himera trader stopped")
	return err
}

func newProviders(cfg config.PricingConfig) pricing.Providers {
	var providers pricing.Providers

	if ep := cfg.Providers.Aggregator; ep.BaseURL != "" {
		providers.Aggregator = aggregator.New(ep.BaseURL,
			aggregator.WithHTTPClient(httpx.New(ep.Timeout)),
			aggregator.WithAPIKey(ep.APIKey),
		)
	}
	if ep := cfg.Providers.Hyperliquid; ep.BaseURL != "" {
		providers.Hyperliquid = hyperliquid.New(ep.BaseURL, hyperliquid.WithHTTPClient(httpx.New(ep.Timeout)))
	}
	if ep := cfg.Providers.Binance; ep.BaseURL != "" {
		providers.Binance = binance.New(
			binance.WithBaseURL(ep.BaseURL),
			binance.WithHTTPClient(httpx.New(ep.Timeout)),
		)
	}
	if ep := cfg.Providers.Coingecko; ep.BaseURL != "" {
		providers.Coingecko = coingecko.New(
			coingecko.WithBaseURL(ep.BaseURL),
			coingecko.WithHTTPClient(httpx.New(ep.Timeout)),
			coingecko.WithAPIKey(ep.APIKey),
		)
	}

	return providers
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// An on-disk migrations directory overrides the embedded set.
	migrator := database.NewMigrator(db, log)
	if _, statErr := os.Stat(cfg.MigrationsDir); cfg.MigrationsDir != "" && statErr == nil {
		_, err = migrator.ApplyDir(ctx, cfg.MigrationsDir)
	} else {
		_, err = migrator.Apply(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func startJobs(cfg *config.Config, resolver *pricing.Resolver, shutdown *lifecycle.Shutdown, log *slog.Logger) (jobs.Manager, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}

	worker := jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypePriceRefresh, jobhandlers.NewPriceRefreshHandler(resolver, cfg.Jobs.Concurrency*2, log))
	worker.RegisterHandler(jobs.TaskTypeCacheClear, jobhandlers.NewCacheClearHandler(resolver, log))

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return nil, err
	}

	if err := worker.Start(); err != nil {
		return nil, err
	}
	if err := scheduler.Start(); err != nil {
		worker.Shutdown()
		return nil, err
	}

	manager := jobs.NewManager(redisOpt, log)

	shutdown.Register(lifecycle.PhaseIngress, "scheduler", func(context.Context) error {
		scheduler.Shutdown()
		return nil
	})
	shutdown.Register(lifecycle.PhaseWorkers, "jobs worker", func(context.Context) error {
		worker.Shutdown()
		return nil
	})
	shutdown.Register(lifecycle.PhaseResources, "jobs client", func(context.Context) error {
		return manager.Close()
	})

	return manager, nil
}
