package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/push-orchestrator/internal/api/handler"
	"github.com/cuongbtq/push-orchestrator/internal/api/router"
	"github.com/cuongbtq/push-orchestrator/internal/config"
	"github.com/cuongbtq/push-orchestrator/internal/events"
	"github.com/cuongbtq/push-orchestrator/internal/intake"
	"github.com/cuongbtq/push-orchestrator/internal/orchestrator"
	"github.com/cuongbtq/push-orchestrator/internal/session"
	"github.com/cuongbtq/push-orchestrator/internal/store"
	"github.com/cuongbtq/push-orchestrator/shared/logger"
	"github.com/cuongbtq/push-orchestrator/shared/postgresql"
	"github.com/cuongbtq/push-orchestrator/shared/rabbitmq"
	"github.com/cuongbtq/push-orchestrator/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("ORCHESTRATOR_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/orchestrator/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting push orchestrator",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("store_backend", cfg.Store.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := make(map[string]handler.HealthCheck)

	jobStore, closeStore, err := initStore(ctx, cfg, appLogger, healthChecks)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	defer closeStore()

	orch := orchestrator.New(orchestrator.Config{
		Store:        jobStore,
		Logger:       appLogger.Component("orchestrator"),
		MaxJobs:      cfg.Retention.MaxJobs,
		CompletedTTL: cfg.Retention.CompletedTTL,
		SaveTimeout:  cfg.Store.SaveTimeout,
	})
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	registry := session.NewRegistry(orch, appLogger.Component("session"))
	orch.AddListener(registry)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RabbitMQ.Events.Enabled {
		eventsClient, err := initRabbitMQ(&cfg.RabbitMQ, eventsBinding(&cfg.RabbitMQ.Events), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ events: %w", err)
		}
		defer eventsClient.Close()

		publisher := events.NewPublisher(eventsClient, appLogger.Component("events"), cfg.RabbitMQ.Events.BufferSize)
		orch.AddListener(publisher)
		healthChecks["rabbitmq_events"] = brokerHealth(eventsClient)

		g.Go(func() error { return publisher.Run(gctx) })
		g.Go(func() error { return watchBroker(gctx, eventsClient, "events") })
	}

	if cfg.RabbitMQ.Intake.Enabled {
		intakeClient, err := initRabbitMQ(&cfg.RabbitMQ, intakeBinding(&cfg.RabbitMQ.Intake), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ intake: %w", err)
		}
		defer intakeClient.Close()

		consumer := intake.NewConsumer(&intake.Config{
			Logger:        appLogger.Component("intake"),
			Source:        intakeClient,
			Jobs:          orch,
			ConsumerTag:   cfg.RabbitMQ.Intake.ConsumerTag,
			Concurrency:   cfg.RabbitMQ.Intake.Concurrency,
			PrefetchCount: cfg.RabbitMQ.Intake.PrefetchCount,
		})
		healthChecks["rabbitmq_intake"] = brokerHealth(intakeClient)

		g.Go(func() error { return consumer.Run(gctx) })
		g.Go(func() error { return watchBroker(gctx, intakeClient, "intake") })
	}

	sweeper := orchestrator.NewSweeper(orch, cfg.Retention.SweepInterval, appLogger.Component("sweeper"))
	g.Go(func() error { return sweeper.Run(gctx) })

	live := session.NewHandler(registry, appLogger.Component("live"), session.HandlerConfig{
		SendBuffer:   cfg.Live.SendBuffer,
		ReadLimit:    cfg.Live.ReadLimit,
		WriteTimeout: cfg.Live.WriteTimeout,
	})

	r := initRouter(cfg, appLogger.Logger, orch, live.Serve, healthChecks)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not closed by Shutdown
		registry.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown",
				slog.Any("error", err),
			)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

// initStore opens the configured job store backend and registers its health check
func initStore(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, checks map[string]handler.HealthCheck) (store.Store, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		appLogger.Warn("Using in-memory job store, jobs will not survive a restart")
		return store.NewMemoryStore(), noop, nil

	case config.BackendFile:
		return store.NewFileStore(cfg.Store.FilePath), noop, nil

	case config.BackendPostgres:
		dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return nil, noop, err
		}
		pgStore, err := store.NewPostgresStore(ctx, dbClient.GetDB(), appLogger.Component("store"))
		if err != nil {
			dbClient.Close()
			return nil, noop, err
		}
		checks["postgres"] = dbClient.HealthCheck
		return pgStore, func() { dbClient.Close() }, nil

	case config.BackendRedis:
		redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
		if err != nil {
			return nil, noop, err
		}
		checks["redis"] = redisClient.HealthCheck
		return store.NewRedisStore(redisClient.GetClient(), cfg.Store.RedisKey), func() { redisClient.Close() }, nil
	}

	return nil, noop, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnectTimeout:  cfg.ConnectTimeout,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRedis initializes the Redis client
func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}, logger)
}

// binding is the exchange and optional queue one RabbitMQ client declares
type binding struct {
	exchange   config.ExchangeConfig
	queue      config.QueueConfig
	routingKey string
}

func eventsBinding(cfg *config.EventsConfig) binding {
	return binding{exchange: cfg.Exchange}
}

func intakeBinding(cfg *config.IntakeConfig) binding {
	return binding{exchange: cfg.Exchange, queue: cfg.Queue, routingKey: cfg.RoutingKey}
}

// initRabbitMQ initializes a RabbitMQ client for one binding
func initRabbitMQ(cfg *config.RabbitMQConfig, b binding, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       b.exchange.Name,
		ExchangeType:       b.exchange.Type,
		ExchangeDurable:    b.exchange.Durable,
		ExchangeAutoDelete: b.exchange.AutoDelete,
		QueueName:          b.queue.Name,
		QueueDurable:       b.queue.Durable,
		QueueAutoDelete:    b.queue.AutoDelete,
		QueueExclusive:     b.queue.Exclusive,
		RoutingKey:         b.routingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func brokerHealth(client *rabbitmq.Client) handler.HealthCheck {
	return func(context.Context) error {
		if !client.IsConnected() {
			return errors.New("rabbitmq not connected")
		}
		return nil
	}
}

// watchBroker fails the process when the broker channel is closed underneath it
func watchBroker(ctx context.Context, client *rabbitmq.Client, name string) error {
	select {
	case <-ctx.Done():
		return nil
	case amqpErr, ok := <-client.NotifyClose():
		if !ok || amqpErr == nil {
			return nil
		}
		return fmt.Errorf("rabbitmq %s channel closed: %s", name, amqpErr.Error())
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, jobs handler.JobService, live gin.HandlerFunc, checks map[string]handler.HealthCheck) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	handlerDeps := &handler.Dependencies{
		Logger:          logger,
		Jobs:            jobs,
		LiveChannel:     live,
		HealthChecks:    checks,
		WebhookSecret:   cfg.Webhook.Secret,
		SignatureHeader: cfg.Webhook.SignatureHeader,
	}

	return router.SetupRouter(handlerDeps)
}
