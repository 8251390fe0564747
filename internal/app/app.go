package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/config"
	"github.com/Mino1214/juncom-server/internal/event"
	"github.com/Mino1214/juncom-server/internal/gateway"
	handler "github.com/Mino1214/juncom-server/internal/handler/http"
	"github.com/Mino1214/juncom-server/internal/queue"
	"github.com/Mino1214/juncom-server/internal/repository/postgres"
	"github.com/Mino1214/juncom-server/internal/service"
	"github.com/Mino1214/juncom-server/internal/worker"
	"github.com/Mino1214/juncom-server/migrations"
	"github.com/Mino1214/juncom-server/pkg/database"
	"github.com/Mino1214/juncom-server/pkg/health"
	"github.com/Mino1214/juncom-server/pkg/httpclient"
	pkgkafka "github.com/Mino1214/juncom-server/pkg/kafka"
)

// App wires together all dependencies and runs the storefront server.
type App struct {
	cfg           *config.Config
	logger        *slog.Logger
	pool          *pgxpool.Pool
	redis         *redis.Client
	producer      *pkgkafka.Producer
	httpServer    *http.Server
	queueWorker   *queue.Worker
	orderPaid     *pkgkafka.Consumer
	orderCanceled *pkgkafka.Consumer
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "juncom")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis for the stock cache, session cache, and verification codes.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Initialize Kafka producer with connection validation and retry.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	stockCache := cache.NewStockCache(redisClient, time.Duration(cfg.StockCacheTTLSeconds)*time.Second)
	userCache := cache.NewUserCache(redisClient, time.Duration(cfg.UserCacheTTLSeconds)*time.Second)

	eventProducer := event.NewProducer(producer, logger)
	jobQueue := queue.NewPostgresQueue(pool, cfg.QueueMaxAttempts)

	orderService := service.NewOrderService(pool, orderRepo, jobQueue, stockCache, eventProducer, logger,
		time.Duration(cfg.AutoCancelDelaySeconds)*time.Second)
	productService := service.NewProductService(productRepo, logger)
	stockService := service.NewStockService(productRepo, stockCache, logger)
	authService := service.NewAuthService(userRepo, userCache, logger)
	verificationService := service.NewVerificationService(redisClient, &service.LogCodeSender{Logger: logger}, logger,
		time.Duration(cfg.VerificationTTLSeconds)*time.Second)

	// Outbound clients share one retrying HTTP client, each behind its own
	// circuit breaker.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	gatewayClient := httpclient.NewCircuitBreakerClient(baseClient,
		httpclient.DefaultCircuitBreakerConfig("payment-gateway"), logger)
	addressAPIClient := httpclient.NewCircuitBreakerClient(baseClient,
		httpclient.DefaultCircuitBreakerConfig("address-api"), logger)

	paymentGateway := gateway.NewPaymentClient(gatewayClient, cfg.GatewayBaseURL, cfg.GatewayMerchant, cfg.GatewayAPIKey, logger)
	addressClient := gateway.NewAddressClient(addressAPIClient, cfg.AddressAPIBaseURL, cfg.AddressAPIKey)

	paymentService := service.NewPaymentService(orderService, paymentGateway, logger)

	// Job queue worker pool for order.create and order.autocancel jobs.
	queueWorker := queue.NewWorker(jobQueue, logger, cfg.QueueWorkers,
		time.Duration(cfg.QueuePollIntervalMs)*time.Millisecond)
	worker.NewOrderHandlers(orderService, logger).Register(queueWorker)

	// Notification-side consumers for order lifecycle events.
	eventConsumer := event.NewConsumer(orderRepo, &event.LogReceiptMailer{Logger: logger}, logger)
	idempotencyStore := pkgkafka.NewRedisIdempotencyStore(redisClient, "juncom:events", 24*time.Hour)

	orderPaidConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   "juncom-server-order-paid",
		Topic:     event.TopicOrderPaid,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleOrderPaid, logger), logger)

	orderCanceledConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:   cfg.KafkaBrokers,
		GroupID:   "juncom-server-order-canceled",
		Topic:     event.TopicOrderCanceled,
		MinBytes:  1,
		MaxBytes:  10e6,
		EnableDLQ: true,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleOrderCanceled, logger), logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(handler.RouterDeps{
		Orders:       orderService,
		Payments:     paymentService,
		Products:     productService,
		Stock:        stockService,
		Auth:         authService,
		Verification: verificationService,
		Address:      addressClient,
		Health:       healthHandler,
		Logger:       logger,
		Environment:  cfg.Environment,
		CORSOrigins:  cfg.CORSAllowedOrigins,
		PprofCIDRs:   cfg.PprofAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		pool:          pool,
		redis:         redisClient,
		producer:      producer,
		httpServer:    httpServer,
		queueWorker:   queueWorker,
		orderPaid:     orderPaidConsumer,
		orderCanceled: orderCanceledConsumer,
	}, nil
}

// Run starts the HTTP server, queue workers, and Kafka consumers, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Start the job queue worker pool. Start returns once ctx is canceled and
	// in-flight jobs have drained.
	go a.queueWorker.Start(ctx)

	// Start Kafka consumers.
	go func() {
		if err := a.orderPaid.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order paid consumer: %w", err)
		}
	}()

	go func() {
		if err := a.orderCanceled.Start(ctx); err != nil {
			errCh <- fmt.Errorf("order canceled consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka consumers
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Close Kafka consumers.
	if err := a.orderPaid.Close(); err != nil {
		a.logger.Error("order paid consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.orderCanceled.Close(); err != nil {
		a.logger.Error("order canceled consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
