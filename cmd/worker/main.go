// Command worker runs the review sync pipeline: it polls App Store Connect on
// a cron schedule, announces new and changed reviews to chat, and posts
// developer replies submitted from chat cards or /reply commands.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"protalk/internal/config"
	"protalk/internal/handler/http/callback"
	"protalk/internal/handler/http/respond"
	pgRepo "protalk/internal/infra/adapter/persistence/postgres"
	sqliteRepo "protalk/internal/infra/adapter/persistence/sqlite"
	"protalk/internal/infra/appstore"
	"protalk/internal/infra/card"
	"protalk/internal/infra/db"
	"protalk/internal/infra/dedup"
	"protalk/internal/infra/transport"
	workerPkg "protalk/internal/infra/worker"
	"protalk/internal/observability/logging"
	"protalk/internal/observability/metrics"
	"protalk/internal/observability/slo"
	"protalk/internal/repository"
	"protalk/internal/resilience/circuitbreaker"
	"protalk/internal/usecase/connection"
	"protalk/internal/usecase/delivery"
	"protalk/internal/usecase/notify"
	"protalk/internal/usecase/reply"
	"protalk/internal/usecase/reviewsync"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := logging.New()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		// 機密情報をマスクしてログ出力
		logger.Error("worker stopped with error", slog.String("error", respond.SanitizeError(err)))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("cron_schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("sync_timeout", workerConfig.SyncTimeout),
		slog.Int("sync_concurrency", workerConfig.SyncConcurrency),
		slog.Bool("sync_on_start", workerConfig.SyncOnStart),
		slog.Int("health_port", workerConfig.HealthPort))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Info("service configuration loaded",
		slog.Any("app_ids", cfg.AppIDs()),
		slog.String("chat_mode", cfg.Chat.Mode),
		slog.String("db_driver", cfg.Storage.Driver),
		slog.String("sync_strategy", cfg.Sync.Strategy))

	database, err := initDatabase(ctx, logger, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	reviews, syncState := newRepositories(cfg.Storage.Driver, circuitbreaker.NewDB(database))

	client, err := newAppStoreClient(cfg.AppStore)
	if err != nil {
		return err
	}

	dedupStore, closeDedup, err := newDedupStore(ctx, logger, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDedup()

	mode := newMode(logger, cfg.Chat, dedupStore)
	notifier := notify.NewService(card.NewRenderer(cfg.AppNames()), mode)
	replies := reply.NewService(client, reviews, notifier)
	mode.SetHandlers(replies.Handlers())

	syncConfig := reviewsync.Config{
		Strategy:    reviewsync.Strategy(cfg.Sync.Strategy),
		Concurrency: workerConfig.SyncConcurrency,
		MaxReviews:  cfg.Sync.MaxReviews,
		Policy:      cfg.Policy.ReviewPolicy(),
	}
	syncer := reviewsync.NewService(client, reviews, syncState, notifier, syncConfig)

	if err := mode.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize connection: %w", err)
	}
	if err := mode.Connect(ctx); err != nil {
		// StreamingMode keeps retrying in the background
		logger.Warn("initial chat connection failed", slog.Any("error", err))
	}

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", workerConfig.HealthPort), logger, mode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreClosed(healthServer.Start(gctx))
	})
	g.Go(func() error {
		return serve(gctx, logger, "metrics", newMetricsServer(cfg.MetricsAddr, healthServer))
	})
	if cfg.Chat.Mode != config.ChatModeStream {
		handler := callback.NewHandler(mode, cfg.Chat.VerificationToken, callback.WithDedup(dedupStore))
		g.Go(func() error {
			return serve(gctx, logger, "callback", newCallbackServer(cfg.Chat.CallbackAddr, handler))
		})
	}
	g.Go(func() error {
		reportDBStats(gctx, database)
		return nil
	})

	job := &syncJob{
		logger:  logger,
		syncer:  syncer,
		appIDs:  cfg.AppIDs(),
		timeout: workerConfig.SyncTimeout,
		metrics: workerMetrics,
		conn:    mode,
	}
	c := cron.New(
		cron.WithLocation(workerConfig.Location()),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: logger})),
	)
	if _, err := c.AddFunc(workerConfig.CronSchedule, func() { job.Run(gctx) }); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	if workerConfig.SyncOnStart {
		g.Go(func() error {
			job.Run(gctx)
			return nil
		})
	}
	c.Start()

	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.String("schedule", workerConfig.CronSchedule),
		slog.String("timezone", workerConfig.Location().String()))

	<-gctx.Done()
	logger.Info("worker shutting down")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("running sync job did not finish before shutdown timeout")
	}
	if err := mode.Shutdown(shutdownCtx); err != nil {
		logger.Error("connection shutdown failed", slog.Any("error", err))
	}
	return g.Wait()
}

func initDatabase(ctx context.Context, logger *slog.Logger, cfg config.StorageConfig) (*sql.DB, error) {
	database, err := db.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.MigrateUp(database, cfg.Driver); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", slog.String("driver", cfg.Driver))
	return database, nil
}

func newRepositories(driver string, conn *circuitbreaker.DB) (repository.ReviewRepository, repository.SyncStateRepository) {
	if driver == db.DriverSQLite {
		return sqliteRepo.NewReviewRepo(conn), sqliteRepo.NewSyncStateRepo(conn)
	}
	return pgRepo.NewReviewRepo(conn), pgRepo.NewSyncStateRepo(conn)
}

func newAppStoreClient(cfg config.AppStoreConfig) (*appstore.Client, error) {
	key, err := cfg.PrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	tokens, err := appstore.NewTokenProvider(appstore.Credentials{
		IssuerID:   cfg.IssuerID,
		KeyID:      cfg.KeyID,
		PrivateKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("create token provider: %w", err)
	}

	clientCfg := appstore.DefaultConfig()
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxPages = cfg.MaxPages
	client, err := appstore.NewClient(clientCfg, tokens)
	if err != nil {
		return nil, fmt.Errorf("create appstore client: %w", err)
	}
	return client, nil
}

type dedupBackend interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// newDedupStore uses Redis when REDIS_URL is set so several workers share
// delivery history; otherwise history lives in process memory.
func newDedupStore(ctx context.Context, logger *slog.Logger, cfg config.StorageConfig) (dedupBackend, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("dedup store: memory", slog.Duration("ttl", cfg.DedupTTL))
		return dedup.NewMemoryStore(cfg.DedupTTL), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("dedup store: redis", slog.String("addr", opts.Addr), slog.Duration("ttl", cfg.DedupTTL))

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close redis client", slog.Any("error", err))
		}
	}
	return dedup.NewRedisStore(rdb, cfg.DedupTTL), closeFn, nil
}

// newMode builds the connection for cfg.Mode:
//   - stream: websocket event stream, pushes queued and sent over the stream
//   - webhook: bot webhook for pushes, inbound events via the callback server
//   - callback: request-response only, inbound events via the callback server
func newMode(logger *slog.Logger, cfg config.ChatConfig, store dedupBackend) connection.Mode {
	var client transport.Client
	switch cfg.Mode {
	case config.ChatModeCallback:
		return connection.NewRequestResponseMode()
	case config.ChatModeWebhook:
		client = transport.NewWebhookClient(transport.WebhookConfig{
			URL:           cfg.WebhookURL,
			Secret:        cfg.WebhookSecret,
			RatePerSecond: cfg.WebhookRate,
		})
	default:
		client = transport.NewStreamClient(transport.StreamConfig{
			URL:   cfg.StreamURL,
			Token: cfg.StreamToken,
		})
	}

	return connection.NewStreamingMode(client,
		connection.StreamingConfig{
			ReconnectInterval:    cfg.ReconnectInterval,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
			Queue: delivery.Config{
				Name:          cfg.Mode,
				BatchSize:     cfg.BatchSize,
				FlushInterval: cfg.FlushInterval,
				MaxRetries:    cfg.MaxRetries,
			},
		},
		connection.WithDedupStore(store),
		connection.WithOnDrop(func(task delivery.Task, err error) {
			logger.Error("notification dropped",
				slog.String("task_id", task.ID),
				slog.String("review_id", task.Message.ReviewID),
				slog.String("kind", string(task.Kind)),
				slog.Int("retries", task.RetryCount),
				slog.String("error", respond.SanitizeError(err)))
		}),
	)
}

func reportDBStats(ctx context.Context, database *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := database.Stats()
			metrics.UpdateDBConnectionStats(st.InUse, st.Idle)
		}
	}
}

// syncJob is one scheduled SyncAllApps run with timeout and job metrics.
type syncJob struct {
	logger  *slog.Logger
	syncer  *reviewsync.Service
	appIDs  []string
	timeout time.Duration
	metrics *workerPkg.WorkerMetrics
	conn    workerPkg.ConnectionReporter
}

// Run syncs every app once. Per-app failures do not fail the job: it is
// "partial" when some apps failed and "failure" when all did.
func (j *syncJob) Run(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	start := time.Now()
	j.logger.Info("sync job started", slog.Int("apps", len(j.appIDs)))

	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	agg := j.syncer.SyncAllApps(ctx, j.appIDs)
	status := jobStatus(agg)

	j.metrics.RecordJobRun(status)
	j.metrics.RecordJobDuration(time.Since(start).Seconds())
	j.metrics.RecordReviewsProcessed(agg.TotalReviews)
	if status == "success" {
		j.metrics.RecordLastSuccess()
	}
	slo.RecordSyncCycle(agg.SuccessApps, agg.TotalApps)
	if q := j.conn.Status().Queue; q != nil {
		slo.RecordDelivery(q.Processed, q.Dropped)
	}

	attrs := []any{
		slog.String("status", status),
		slog.Int("apps", agg.TotalApps),
		slog.Int("failed_apps", len(agg.FailedApps)),
		slog.Int("reviews", agg.TotalReviews),
		slog.Int("new", agg.TotalNew),
		slog.Int("updated", agg.TotalUpdated),
		slog.Duration("duration", agg.Duration),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		attrs = append(attrs, slog.Duration("timeout", j.timeout))
	}
	if status == "success" {
		j.logger.Info("sync job completed", attrs...)
	} else {
		j.logger.Warn("sync job completed with failures", attrs...)
	}
}

func jobStatus(agg reviewsync.AggregateResult) string {
	switch {
	case len(agg.FailedApps) == 0:
		return "success"
	case len(agg.FailedApps) < agg.TotalApps:
		return "partial"
	default:
		return "failure"
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
