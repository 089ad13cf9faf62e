package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/notify-pipeline/internal/config"
	"github.com/kursadbilgin/notify-pipeline/internal/deadletter"
	"github.com/kursadbilgin/notify-pipeline/internal/domain"
	"github.com/kursadbilgin/notify-pipeline/internal/handler"
	"github.com/kursadbilgin/notify-pipeline/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-pipeline/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-pipeline/internal/infra/redis"
	"github.com/kursadbilgin/notify-pipeline/internal/observability"
	"github.com/kursadbilgin/notify-pipeline/internal/provider"
	"github.com/kursadbilgin/notify-pipeline/internal/queue"
	"github.com/kursadbilgin/notify-pipeline/internal/renderer"
	"github.com/kursadbilgin/notify-pipeline/internal/repository"
	"github.com/kursadbilgin/notify-pipeline/internal/resilience"
	"github.com/kursadbilgin/notify-pipeline/internal/resolver"
	"github.com/kursadbilgin/notify-pipeline/internal/service"
	"github.com/kursadbilgin/notify-pipeline/internal/status"
	"github.com/kursadbilgin/notify-pipeline/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rabbit.Close()

	ledger, err := infraredis.NewRedisLedger(rdb, time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("idempotency ledger init failed: %w", err)
	}
	throttle, err := infraredis.NewRedisThrottle(rdb, cfg.ThrottlePerSec)
	if err != nil {
		return fmt.Errorf("throttle init failed: %w", err)
	}

	targetResolver, err := resolver.NewHTTPResolver(cfg.UserServiceURL)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	contentRenderer, err := renderer.NewHTTPRenderer(cfg.TemplateServiceURL)
	if err != nil {
		return fmt.Errorf("renderer init failed: %w", err)
	}
	reporter, err := status.NewHTTPReporter(cfg.GatewayURL, logger)
	if err != nil {
		return fmt.Errorf("status reporter init failed: %w", err)
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	breakerCfg := resilience.BreakerConfig{
		FailureThreshold: uint32(cfg.BreakerFailureThreshold),
		OpenDuration:     time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	}
	breakers := make(map[domain.Channel]*resilience.Breaker[*provider.Response], len(providers))
	for channel, prov := range providers {
		perProvider := breakerCfg
		perProvider.Name = prov.Name()
		breakers[channel] = resilience.NewBreaker[*provider.Response](perProvider, logger)
	}

	metrics := observability.NewMetrics()
	publisher := queue.NewRabbitMQPublisher(rabbit)
	defer publisher.Close()

	attemptRepo := repository.NewGormAttemptRepo(db)
	deadLetterRepo := repository.NewGormDeadLetterRepo(db)
	router := deadletter.NewRouter(publisher, deadLetterRepo, logger)

	// The consumer is built before the dispatcher but routes malformed
	// payloads to it; the indirection closes over the later assignment.
	var dispatcher *service.Dispatcher
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.PrefetchCount, func(ctx context.Context, body []byte, cause error) {
		if dispatcher != nil {
			dispatcher.HandleMalformed(ctx, body, cause)
		}
	}, logger)
	defer consumer.Close()

	dispatcher, err = service.NewDispatcher(service.DispatcherConfig{
		Ledger:      ledger,
		Resolver:    targetResolver,
		Renderer:    contentRenderer,
		Providers:   providers,
		Breakers:    breakers,
		Limiter:     throttle,
		DeadLetters: router,
		Reporter:    reporter,
		Attempts:    attemptRepo,
		Consumer:    consumer,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: cfg.WorkerConcurrency,
		LookupPolicy: resilience.Policy{
			MaxAttempts: cfg.LookupMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		},
		DeliveryPolicy: resilience.Policy{
			MaxAttempts: cfg.DeliveryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		},
	})
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit, dispatcher)
	handler.RegisterOpsRoutes(app, deadLetterRepo, attemptRepo)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("worker pool starting", zap.Int("concurrency", cfg.WorkerConcurrency))
		return dispatcher.Start(groupCtx)
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("ops server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("worker stopped cleanly")
	return nil
}

func buildProviders(cfg *config.Config) (map[domain.Channel]provider.Provider, error) {
	fcm, err := provider.NewFCMProvider(cfg.FCMEndpoint, cfg.FCMServerKey)
	if err != nil {
		return nil, fmt.Errorf("fcm provider init failed: %w", err)
	}
	mailer, err := provider.NewMailProvider(cfg.MailEndpoint, cfg.MailAPIKey)
	if err != nil {
		return nil, fmt.Errorf("mail provider init failed: %w", err)
	}
	sms, err := provider.NewSMSProvider(cfg.SMSGatewayURL)
	if err != nil {
		return nil, fmt.Errorf("sms provider init failed: %w", err)
	}

	return map[domain.Channel]provider.Provider{
		domain.ChannelPush:  fcm,
		domain.ChannelEmail: mailer,
		domain.ChannelSMS:   sms,
	}, nil
}
