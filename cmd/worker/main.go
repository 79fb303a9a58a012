package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"daily-briefing/internal/config"
	pgRepo "daily-briefing/internal/infra/adapter/persistence/postgres"
	"daily-briefing/internal/infra/db"
	"daily-briefing/internal/infra/idempotency"
	"daily-briefing/internal/infra/notifier"
	"daily-briefing/internal/infra/queue"
	workerPkg "daily-briefing/internal/infra/worker"
	"daily-briefing/internal/observability/logging"
	"daily-briefing/internal/observability/metrics"
	"daily-briefing/internal/observability/tracing"
	pkgconfig "daily-briefing/internal/pkg/config"
	"daily-briefing/internal/repository"
	"daily-briefing/internal/resilience/retry"
	"daily-briefing/internal/usecase/briefing"
	"daily-briefing/internal/usecase/notify"
	"daily-briefing/internal/usecase/schedule"
)

// shutdownTimeout bounds how long an in-flight tick may take after a
// termination signal. In-flight sends get at least their own resolve and send
// deadlines; see drainTimeout.
const shutdownTimeout = 30 * time.Second

// drainTimeout is how long shutdown waits for the consumer. A handler that
// started before the signal keeps running on an uncancelled context, so the
// wait covers one full identity lookup and adapter call.
func drainTimeout(wc *workerPkg.WorkerConfig) time.Duration {
	d := wc.DispatchResolveTimeout + wc.DispatchSendTimeout + 5*time.Second
	if d < shutdownTimeout {
		return shutdownTimeout
	}
	return d
}

func main() {
	// Variables already in the environment win over the file.
	envFileErr := godotenv.Load(envFile())
	logger := initLogger()
	if envFileErr != nil && os.Getenv("ENV_FILE") != "" {
		logger.Error("failed to load env file", slog.Any("error", envFileErr))
		os.Exit(1)
	} else if envFileErr != nil {
		logger.Debug("no .env file found, using process environment")
	}
	shutdownTracing := tracing.Init(tracing.ConfigFromEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("scan_cron", workerConfig.ScanCron),
		slog.Duration("scan_interval", workerConfig.ScanInterval),
		slog.Duration("scan_timeout", workerConfig.ScanTimeout),
		slog.Int("queue_max_batch", workerConfig.QueueMaxBatch),
		slog.Int("dispatch_max_concurrent", workerConfig.DispatchMaxConcurrent),
		slog.Int("health_port", workerConfig.HealthPort),
		slog.Int("metrics_port", workerConfig.MetricsPort))

	database := initDatabase(ctx, logger, loadPoolConfig(logger, workerConfig, workerMetrics))
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	broker, err := queue.Connect(ctx, loadQueueConfig(logger, workerConfig, workerMetrics), logger)
	if err != nil {
		logger.Error("failed to connect to broker", slog.String("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logger.Error("failed to close broker", slog.Any("error", err))
		}
	}()

	rdb, claims := initClaimStore(logger, workerMetrics)
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	prefRepo := pgRepo.NewPreferenceRepo(database)
	identityRepo := pgRepo.NewIdentityRepo(database)
	dispatcher := setupDispatcher(logger, identityRepo, workerConfig)

	publisher, err := broker.Publisher()
	if err != nil {
		logger.Error("failed to open publisher", slog.Any("error", err))
		os.Exit(1)
	}
	producer := schedule.NewProducer(publisher, logger, schedule.WithBatchSize(workerConfig.QueueMaxBatch))
	scanner := schedule.NewScanner(prefRepo, logger)
	job := briefing.NewJob(scanner, producer, prefRepo, briefing.JobConfig{
		Interval: workerConfig.ScanInterval,
		Timeout:  workerConfig.ScanTimeout,
	}, workerMetrics, logger)

	consumer, err := broker.Consumer()
	if err != nil {
		logger.Error("failed to open consumer", slog.Any("error", err))
		os.Exit(1)
	}
	briefingConsumer := briefing.NewConsumer(dispatcher, claims, briefing.Renderer{
		AppURL: pkgconfig.LoadEnvString("APP_URL", ""),
	}, logger)

	// Start metrics HTTP server
	startMetricsServer(ctx, logger, workerConfig.MetricsPort, dispatcher)

	// Start health check server
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	healthServer.AddCheck("database", database.PingContext)
	healthServer.AddCheck("broker", broker.Check)
	healthServer.AddCheck("redis", claims.Check)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx, handleDelivery(briefingConsumer))
	}()

	scheduler := startScheduler(ctx, logger, job, workerConfig)

	// Mark as ready after cron and consumer are set up
	healthServer.SetReady(true)
	logger.Info("worker started", slog.String("schedule", workerConfig.ScanCron))

	consumerStopped := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-consumerDone:
		logger.Error("consumer stopped", slog.Any("error", err))
		consumerStopped = true
		stop()
	}

	healthServer.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout(workerConfig))
	defer cancel()

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scan job still running at shutdown")
	}
	if !consumerStopped {
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
			logger.Warn("consumer did not drain before shutdown")
		}
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown incomplete", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", slog.Any("error", err))
	}
	logger.Info("worker stopped")
}

// envFile returns ENV_FILE, or .env for local runs.
func envFile() string {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and applies the schema.
func initDatabase(ctx context.Context, logger *slog.Logger, pool db.PoolConfig) *sql.DB {
	var database *sql.DB
	err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		var err error
		database, err = db.Open(ctx, os.Getenv("DATABASE_URL"), pool)
		return err
	})
	if err != nil {
		logger.Error("failed to open database", slog.String("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := metrics.RegisterDBStats(database, "daily_briefing"); err != nil {
		logger.Warn("database pool metrics unavailable", slog.Any("error", err))
	}
	return database
}

// loadPoolConfig sizes the connection pool from the dispatch concurrency.
//
// Environment variables:
//   - DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS: pool limits
//   - DB_CONN_MAX_LIFETIME, DB_CONN_MAX_IDLE_TIME: connection recycling
func loadPoolConfig(logger *slog.Logger, wc *workerPkg.WorkerConfig, wm *workerPkg.WorkerMetrics) db.PoolConfig {
	pool := db.PoolConfigFor(wc.DispatchMaxConcurrent)
	positive := func(n int) error { return pkgconfig.ValidateIntRange(n, 1, 500) }

	pool.MaxOpenConns = fromEnv(logger, wm, "DB_MAX_OPEN_CONNS",
		pkgconfig.LoadEnvInt("DB_MAX_OPEN_CONNS", pool.MaxOpenConns, positive))
	pool.MaxIdleConns = fromEnv(logger, wm, "DB_MAX_IDLE_CONNS",
		pkgconfig.LoadEnvInt("DB_MAX_IDLE_CONNS", min(pool.MaxIdleConns, pool.MaxOpenConns), func(n int) error {
			return pkgconfig.ValidateIntRange(n, 0, pool.MaxOpenConns)
		}))
	pool.ConnMaxLifetime = fromEnv(logger, wm, "DB_CONN_MAX_LIFETIME",
		pkgconfig.LoadEnvDuration("DB_CONN_MAX_LIFETIME", pool.ConnMaxLifetime, pkgconfig.ValidatePositiveDuration))
	pool.ConnMaxIdleTime = fromEnv(logger, wm, "DB_CONN_MAX_IDLE_TIME",
		pkgconfig.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", pool.ConnMaxIdleTime, pkgconfig.ValidatePositiveDuration))
	return pool
}

// loadQueueConfig reads the broker settings. Invalid values fall back to
// the defaults with a warning.
//
// Environment variables:
//   - AMQP_URL: amqp:// or amqps:// URL (default: local broker)
//   - AMQP_EXCHANGE, AMQP_QUEUE, AMQP_ROUTING_KEY: topology names
//   - AMQP_EXCHANGE_KIND: direct or x-consistent-hash
//   - AMQP_DEAD_LETTER_EXCHANGE: receives rejected deliveries (optional)
//   - AMQP_DEDUPLICATION: declare the queue with broker-side deduplication
func loadQueueConfig(logger *slog.Logger, wc *workerPkg.WorkerConfig, wm *workerPkg.WorkerMetrics) queue.Config {
	cfg := queue.DefaultConfig()

	cfg.URL = fromEnv(logger, wm, "AMQP_URL",
		pkgconfig.LoadEnvWithFallback("AMQP_URL", cfg.URL, func(s string) error {
			return pkgconfig.ValidateURLScheme(s, "amqp", "amqps")
		}))
	cfg.ExchangeKind = fromEnv(logger, wm, "AMQP_EXCHANGE_KIND",
		pkgconfig.LoadEnvWithFallback("AMQP_EXCHANGE_KIND", cfg.ExchangeKind, func(s string) error {
			if s != queue.ExchangeDirect && s != queue.ExchangeConsistentHash {
				return fmt.Errorf("must be %q or %q", queue.ExchangeDirect, queue.ExchangeConsistentHash)
			}
			return nil
		}))
	cfg.Deduplication = fromEnv(logger, wm, "AMQP_DEDUPLICATION",
		pkgconfig.LoadEnvBool("AMQP_DEDUPLICATION", cfg.Deduplication))
	cfg.Exchange = pkgconfig.LoadEnvString("AMQP_EXCHANGE", cfg.Exchange)
	cfg.Queue = pkgconfig.LoadEnvString("AMQP_QUEUE", cfg.Queue)
	cfg.RoutingKey = pkgconfig.LoadEnvString("AMQP_ROUTING_KEY", cfg.RoutingKey)
	cfg.DeadLetterExchange = pkgconfig.LoadEnvString("AMQP_DEAD_LETTER_EXCHANGE", "")

	cfg.MaxBatchSize = wc.QueueMaxBatch
	cfg.Prefetch = wc.DispatchMaxConcurrent
	return cfg
}

// initClaimStore connects the Redis-backed delivery claim store.
//
// Environment variables:
//   - REDIS_ADDR: host:port (default: localhost:6379)
//   - REDIS_PASSWORD: optional
//   - REDIS_DB: database number (default: 0)
func initClaimStore(logger *slog.Logger, wm *workerPkg.WorkerMetrics) (*redis.Client, *idempotency.RedisStore) {
	addr := fromEnv(logger, wm, "REDIS_ADDR",
		pkgconfig.LoadEnvWithFallback("REDIS_ADDR", "localhost:6379", pkgconfig.ValidateHostPort))
	dbNum := fromEnv(logger, wm, "REDIS_DB",
		pkgconfig.LoadEnvInt("REDIS_DB", 0, func(n int) error { return pkgconfig.ValidateIntRange(n, 0, 15) }))

	rdb := idempotency.NewClient(addr, os.Getenv("REDIS_PASSWORD"), dbNum)
	logger.Info("delivery claim store configured", slog.String("addr", addr), slog.Int("db", dbNum))
	return rdb, idempotency.NewRedisStore(rdb, idempotency.DefaultConfig())
}

// fromEnv logs and counts a fallback and returns the loaded value.
func fromEnv[T any](logger *slog.Logger, wm *workerPkg.WorkerMetrics, field string, r pkgconfig.Result[T]) T {
	for _, w := range r.Warnings {
		logger.Warn(w, slog.String("field", field))
	}
	if r.FallbackApplied {
		wm.RecordFallback(field)
		wm.SetFallbackActive(true)
	}
	return r.Value
}

// setupDispatcher builds every channel adapter from the channels
// configuration. A channel without credentials stays registered but disabled,
// so deliveries to it fail with channel_unavailable.
func setupDispatcher(logger *slog.Logger, identities repository.IdentityRepository, wc *workerPkg.WorkerConfig) *notify.Dispatcher {
	channelsConfig, err := config.LoadChannelsConfig()
	if err != nil {
		logger.Error("failed to load channels configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("channels configuration loaded", slog.Any("channels", channelsConfig))

	telegram, err := notifier.NewTelegramNotifier(channelsConfig.TelegramConfig())
	if err != nil {
		logger.Warn("Telegram bot disabled", slog.String("error", logging.SanitizeError(err)))
	}

	channels := []notify.Channel{
		notify.NewEmailChannel(notifier.NewResendNotifier(channelsConfig.ResendConfig())),
		notify.NewBotDMChannel(telegram),
		notify.NewMessagingAppChannel(notifier.NewWhatsAppNotifier(channelsConfig.WhatsAppConfig())),
		notify.NewWorkspaceBotChannel(notifier.NewSlackNotifier(channelsConfig.SlackConfig())),
	}
	for _, ch := range channels {
		logger.Info("delivery channel initialized",
			slog.String("channel", ch.Name()),
			slog.Bool("enabled", ch.IsEnabled()))
	}

	return notify.NewDispatcher(identities, channels, notify.Config{
		SendTimeout:    wc.DispatchSendTimeout,
		ResolveTimeout: wc.DispatchResolveTimeout,
	}, logger)
}

// handleDelivery adapts the briefing consumer to the queue. A claim store
// outage or an interrupted dispatch sends the message back to the queue;
// every other failure rejects it.
func handleDelivery(c *briefing.Consumer) queue.Handler {
	return func(ctx context.Context, d amqp.Delivery) error {
		err := c.Handle(ctx, d.Body)
		if errors.Is(err, briefing.ErrClaimUnavailable) || errors.Is(err, briefing.ErrDeliveryInterrupted) {
			return fmt.Errorf("%w: %w", queue.ErrRequeue, err)
		}
		return err
	}
}

// startScheduler runs the scan job on the configured cron schedule. A tick
// that is still running when the next one fires causes that one to be skipped.
func startScheduler(ctx context.Context, logger *slog.Logger, job *briefing.Job, cfg *workerPkg.WorkerConfig) *cron.Cron {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
	)

	sched, err := pkgconfig.ParseCronSchedule(cfg.ScanCron)
	if err != nil {
		logger.Error("failed to parse scan schedule", slog.Any("error", err))
		os.Exit(1)
	}
	scan := guardedJob(cl, func() {
		runScanJob(ctx, logger, job)
	})
	c.Schedule(sched, scan)
	c.Start()
	logger.Info("scan scheduled", slog.Time("next_run", sched.Next(time.Now().UTC())))

	if cfg.ScanOnStart {
		go scan.Run()
	}
	return c
}

// guardedJob wraps run with panic recovery and overlap skipping. Every caller
// of the returned job shares one running guard.
func guardedJob(cl cronLogger, run func()) cron.Job {
	return cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(run))
}

// runScanJob executes a single tick. The job logs and records its own stats.
func runScanJob(ctx context.Context, logger *slog.Logger, job *briefing.Job) {
	if ctx.Err() != nil {
		return
	}
	if _, err := job.Run(ctx); err != nil {
		logger.Error("scan job failed", slog.String("error", logging.SanitizeError(err)))
	}
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
