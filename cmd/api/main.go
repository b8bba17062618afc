package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/case-service/internal/api/http"
	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/engine"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/normalizer"
	"github.com/spec-kit/case-service/internal/notify"
	"github.com/spec-kit/case-service/internal/observability"
	"github.com/spec-kit/case-service/internal/persistence"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	caseRepo := repository.NewCaseRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	processedRepo := repository.NewProcessedMessageRepository(pool)

	var locks lock.Locker
	if cfg.Redis.UseForLocks {
		locks = lock.NewRedisLocker(redis.Client, logger)
	} else {
		locks = lock.NewKeyedMutex()
	}

	var notifier notify.Notifier
	if cfg.Slack.BotToken != "" {
		notifier = notify.NewSlackNotifier(cfg.Slack, logger)
	} else {
		logger.Warn("no slack token configured, notifications go to the log")
		notifier = notify.NewLogNotifier(logger)
	}

	eng := engine.New(engine.NewConfig(cfg.Engine), engine.Dependencies{
		Cases:    caseRepo,
		Tx:       repository.NewTxRunner(pool),
		Locks:    locks,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
	})

	ticker, err := scheduler.New(cfg.Scheduler, scheduler.TickFunc(func(tickCtx context.Context, now time.Time) {
		eng.HandleTick(tickCtx, now)
	}), logger)
	if err != nil {
		logger.Fatal("invalid scheduler config", zap.Error(err))
	}
	go ticker.Start(ctx)

	norm := normalizer.New(cfg.Engine.MaxBodyBytes)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	inboundHandler := handlers.NewInboundHandler(norm, eng, processedRepo, logger)
	casesHandler := handlers.NewCasesHandler(caseRepo, messageRepo)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  healthHandler,
		Inbound: inboundHandler,
		Cases:   casesHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	ticker.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
