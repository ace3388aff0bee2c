package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/ordersaga/internal/config"
	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/engine"
	"github.com/utafrali/ordersaga/internal/event"
	handler "github.com/utafrali/ordersaga/internal/handler/http"
	"github.com/utafrali/ordersaga/internal/repository"
	"github.com/utafrali/ordersaga/internal/repository/file"
	"github.com/utafrali/ordersaga/internal/repository/memory"
	"github.com/utafrali/ordersaga/internal/repository/postgres"
	redisrepo "github.com/utafrali/ordersaga/internal/repository/redis"
	"github.com/utafrali/ordersaga/internal/repository/resilient"
	"github.com/utafrali/ordersaga/internal/service"
	"github.com/utafrali/ordersaga/pkg/database"
	"github.com/utafrali/ordersaga/pkg/health"
	pkgkafka "github.com/utafrali/ordersaga/pkg/kafka"
	"github.com/utafrali/ordersaga/pkg/retry"
	"github.com/utafrali/ordersaga/pkg/tracing"
)

// App wires together all dependencies and runs the order saga service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	engine         *engine.Engine
	producer       *pkgkafka.Producer
	dlqWriter      *kafka.Writer
	consumer       *pkgkafka.Consumer
	closers        []namedCloser
	tracerShutdown func(context.Context) error
}

type namedCloser struct {
	name  string
	close func() error
}

// NewApp creates a new application instance, initializing all dependencies.
// Everything opened before a failure is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeStores()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"tracer", func() error {
		tctx, tcancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tcancel()
		return a.tracerShutdown(tctx)
	}})

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQuery(), logger)
	}

	policy := cfg.StartupPolicy()
	healthHandler := health.NewHandler()

	// Inventory ledger.
	ledgerStore, err := a.newLedgerStore(ctx, policy, healthHandler)
	if err != nil {
		return nil, err
	}
	ledger := service.NewInventoryLedger(ledgerStore, logger)
	if err := retry.Do(ctx, "load inventory", policy, logger, ledger.Load); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	// Execution engine stores.
	runs, history, redisClient, err := a.newEngineStores(ctx, policy)
	if err != nil {
		return nil, err
	}

	// Events.
	var publisher service.EventPublisher = event.NoopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		}, logger)
		if err := retry.Do(ctx, "kafka ping", policy, logger, a.producer.Ping); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	// Build the dependency graph.
	payments := service.NewPaymentSimulator(logger,
		service.WithFailMarker(cfg.PaymentFailMarker),
		service.WithDecider(service.RandomDecider{SuccessRate: cfg.PaymentSuccessRate}),
		service.WithGatewayLatency(cfg.PaymentLatency),
	)
	shipping := service.NewShippingEstimator(cfg.ShippingRate)
	saga := service.NewOrderSaga(ledger, payments, shipping)

	var orderService *service.OrderService
	a.engine = engine.New(runs, history,
		engine.Config{StepTimeout: cfg.StepTimeout, RunTimeout: cfg.RunTimeout},
		logger,
		engine.WithCloseHook(func(ctx context.Context, run *domain.Run) {
			orderService.HandleRunClosed(ctx, run)
		}),
	)
	orderService = service.NewOrderService(a.engine, saga, publisher, logger)
	inventoryService := service.NewInventoryService(ledger, publisher, logger)

	healthHandler.RegisterCritical("run_store", a.engine.Ping)

	// Kafka consumer for order.requested.
	if cfg.KafkaEnabled {
		var dedup pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.KafkaDedupTTL)
		if redisClient != nil {
			dedup = redisrepo.NewIdempotencyStore(redisClient, cfg.KafkaDedupTTL)
		}
		a.dlqWriter = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		eventConsumer := event.NewConsumer(orderService, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaConsumerGroup,
			Topic:    event.TopicOrderRequested,
			MinBytes: 1,
			MaxBytes: 10e6,
		},
			pkgkafka.IdempotentHandler(dedup, event.TopicOrderRequested, cfg.KafkaConsumerGroup, eventConsumer.HandleOrderRequested, logger),
			logger,
			pkgkafka.WithDLQ(pkgkafka.NewDLQProducer(a.dlqWriter, logger)),
		)
	}

	// HTTP router.
	router := handler.NewRouter(orderService, inventoryService, healthHandler, handler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AdminJWTSecret: cfg.AdminJWTSecret,
		SubmitRPS:      cfg.SubmitRateLimitRPS,
		SubmitBurst:    cfg.SubmitRateLimitBurst,
		PollInterval:   cfg.ProgressPollInterval,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// newLedgerStore opens the configured inventory store. Durable stores are
// wrapped in a circuit breaker.
func (a *App) newLedgerStore(ctx context.Context, policy retry.Policy, h *health.Handler) (repository.InventoryStore, error) {
	var store repository.InventoryStore
	switch a.cfg.LedgerStore {
	case config.LedgerStoreMemory:
		a.logger.Warn("inventory ledger is not durable", slog.String("ledger_store", a.cfg.LedgerStore))
		return memory.NewInventoryStore(), nil

	case config.LedgerStoreFile:
		store = file.NewInventoryStore(a.cfg.LedgerFile)
		a.logger.Info("using file inventory store", slog.String("path", a.cfg.LedgerFile))

	case config.LedgerStorePostgres:
		pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), policy, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"postgres", func() error { pool.Close(); return nil }})
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", a.cfg.PostgresHost),
			slog.Int("port", a.cfg.PostgresPort),
			slog.String("database", a.cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "ordersaga"); err != nil {
			a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		if err := postgres.Migrate(ctx, pool, policy, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
		h.RegisterCritical("postgres", pool.Ping)
		store = postgres.NewInventoryStore(pool)

	default:
		return nil, fmt.Errorf("unsupported ledger store %q", a.cfg.LedgerStore)
	}

	breaker := resilient.NewInventoryStore(store, resilient.DefaultBreakerConfig("ledger_"+a.cfg.LedgerStore), a.logger)
	h.RegisterNonCritical("ledger_breaker", func(context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return resilient.ErrCircuitOpen
		}
		return nil
	})
	return breaker, nil
}

// newEngineStores opens the run and history stores. The redis client is
// returned so other components can share it; it is nil for memory stores.
func (a *App) newEngineStores(ctx context.Context, policy retry.Policy) (repository.RunStore, repository.HistoryStore, *goredis.Client, error) {
	switch a.cfg.EngineStore {
	case config.EngineStoreRedis:
		client, err := database.NewRedisClient(ctx, a.cfg.Redis(), policy, a.logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"redis", client.Close})
		a.logger.Info("connected to Redis", slog.String("addr", a.cfg.RedisAddr))
		return redisrepo.NewRunStore(client, a.cfg.RunRetention),
			redisrepo.NewHistoryStore(client, a.cfg.RunRetention),
			client, nil
	default:
		a.logger.Warn("run history is not durable", slog.String("engine_store", a.cfg.EngineStore))
		return memory.NewRunStore(), memory.NewHistoryStore(), nil, nil
	}
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(gctx); err != nil {
				return fmt.Errorf("order requested consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka consumer (stop starting new runs)
// 3. Engine (wait for running sagas, whose close hooks publish events)
// 4. Kafka producers
// 5. Stores, then the tracer
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop consuming.
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Let running sagas finish.
	engineCtx, engineCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer engineCancel()
	if err := a.engine.Shutdown(engineCtx); err != nil {
		a.logger.Error("engine shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Flush producers.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlqWriter != nil {
		if err := a.dlqWriter.Close(); err != nil {
			a.logger.Error("dlq writer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Stores and tracer.
	errs = append(errs, a.closeStores()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeStores closes everything registered in closers, newest first.
func (a *App) closeStores() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error(c.name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
