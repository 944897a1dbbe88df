package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/clock"
	"github.com/cuongbtq/booking-dispatch/internal/config"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
	"github.com/cuongbtq/booking-dispatch/internal/events"
	"github.com/cuongbtq/booking-dispatch/internal/notify"
	"github.com/cuongbtq/booking-dispatch/internal/schedule"
	"github.com/cuongbtq/booking-dispatch/internal/storage"
	"github.com/cuongbtq/booking-dispatch/internal/telemetry"
	"github.com/cuongbtq/booking-dispatch/internal/worker"
	"github.com/cuongbtq/booking-dispatch/shared/logger"
	"github.com/cuongbtq/booking-dispatch/shared/postgresql"
	"github.com/cuongbtq/booking-dispatch/shared/rabbitmq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := initRedis(&cfg.Redis)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// dispatching continues without de-duplication
		appLogger.Warn("Redis unavailable", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
	} else {
		appLogger.Info("Redis connection established")
	}

	metrics := telemetry.New()
	store := storage.NewPostgres(dbClient, appLogger.Logger)

	dispatcher, err := initDispatcher(cfg, appLogger.Logger, store, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	// The sweeper publishes job_expired events back onto the bus
	sweeper := initBookingService(cfg, appLogger.Logger, store, rabbitClient, metrics)

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Source:        rabbitClient,
		Dispatcher:    dispatcher,
		Dedupe:        worker.NewDedupe(redisClient, cfg.Redis.DedupeTTL),
		Sweeper:       sweeper,
		Metrics:       metrics,
		Concurrency:   cfg.Worker.Concurrency,
		EventTimeout:  cfg.Worker.EventTimeout,
		SweepInterval: cfg.Worker.SweepInterval,
	})

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           metricsMux(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownTimeout := cfg.Worker.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
		if err := redisClient.Close(); err != nil {
			appLogger.Warn("Failed to close redis client", slog.Any("error", err))
		}
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
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
	}

	return logger.New(loggerCfg)
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
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRedis creates the client backing event de-duplication
func initRedis(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// initDispatcher builds the notification dispatcher and its gateways
func initDispatcher(cfg *config.Config, logger *slog.Logger, dir notify.Directory, metrics *telemetry.Metrics) (*notify.Dispatcher, error) {
	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, err
	}

	n := cfg.Notification
	night, err := schedule.NewNightPolicy(loc, n.NightStart, n.BusinessStart)
	if err != nil {
		return nil, err
	}

	return notify.NewDispatcher(notify.Config{
		Directory:   dir,
		Mailer:      notify.NewSMTPMailer(n.SMTP.Host, n.SMTP.Port, n.SMTP.Username, n.SMTP.Password, n.SMTP.From, n.SMTP.FromName),
		Push:        notify.NewPushClient(n.Push.URL, n.Push.APIKey, n.SendTimeout),
		SMS:         notify.NewSMSClient(n.SMS.URL, n.SMS.APIKey, n.SendTimeout),
		Filter:      eligibility.New(cfg.Booking.TranslatorRoleID),
		Night:       night,
		Clock:       clock.Real{},
		Texts:       notify.Texts{Languages: n.Languages, Location: loc},
		Recorder:    metrics,
		Logger:      logger,
		PushAppID:   n.Push.AppID,
		PushTitle:   n.Push.Title,
		SMSFrom:     n.SMS.FromNumber,
		Concurrency: n.Concurrency,
		SendTimeout: n.SendTimeout,
	}), nil
}

// initBookingService builds the lifecycle service used for the expiry sweep
func initBookingService(cfg *config.Config, logger *slog.Logger, store *storage.Postgres, rabbitClient *rabbitmq.Client, metrics *telemetry.Metrics) *booking.Service {
	e := cfg.Booking.Expiry
	return booking.NewService(booking.Config{
		Store: store,
		Clock: clock.Real{},
		Expiry: schedule.Expiry{
			ShortHorizon:  e.ShortHorizon,
			ShortGrace:    e.ShortGrace,
			MediumHorizon: e.MediumHorizon,
			MediumGrace:   e.MediumGrace,
			LongLead:      e.LongLead,
		},
		Filter:             eligibility.New(cfg.Booking.TranslatorRoleID),
		Notifier:           events.NewPublisher(rabbitClient, logger),
		Recorder:           metrics,
		Logger:             logger,
		ImmediateLeadTime:  cfg.Booking.ImmediateLeadTime,
		CancellationWindow: cfg.Booking.CancellationWindow,
	})
}

func metricsMux(metrics *telemetry.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"booking-worker-service"}`))
	})
	return mux
}
