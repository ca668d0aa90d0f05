package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/config"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/event"
	httphandler "github.com/gomersimpson131212-create/reviews-telegram-bot/internal/handler/http"
	tghandler "github.com/gomersimpson131212-create/reviews-telegram-bot/internal/handler/telegram"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository/postgres"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender/mock"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender/telegram"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/service"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/migrations"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/database"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/health"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/idempotency"
	pkgkafka "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/kafka"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/tracing"
)

// App wires together all dependencies and runs the feedback bot.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	redis      *redis.Client
	producer   *pkgkafka.Producer
	httpServer *http.Server

	dispatcher *tghandler.Dispatcher
	aggregator *service.Aggregator

	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// Tracing.
	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdownTracer
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	// Initialize PostgreSQL connection pool and schema.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	// Update de-duplication: Redis when configured, memory otherwise.
	var dedupe idempotency.Store
	if redisCfg := cfg.Redis(); redisCfg.Enabled() {
		client, err := database.NewRedisClient(ctx, redisCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		dedupe = idempotency.NewRedisStore(client, cfg.UpdateDedupTTL)
	} else {
		dedupe = idempotency.NewMemoryStore(cfg.UpdateDedupTTL)
	}

	// Kafka domain events.
	var publisher pkgkafka.Publisher
	if cfg.KafkaEnabled {
		kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
		kafkaCfg.TopicPrefix = cfg.KafkaTopicPrefix
		a.producer = pkgkafka.NewProducer(kafkaCfg, logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	events := event.NewProducer(publisher, cfg.KafkaTopicPrefix, logger)

	// Messaging platform.
	var snd sender.Sender
	if cfg.TelegramDryRun {
		snd = mock.NewMockSender(logger)
		logger.Warn("TELEGRAM_DRY_RUN is set, outbound messages are only logged")
	} else {
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.BotToken,
			APIEndpoint: cfg.TelegramAPIEndpoint,
			PollTimeout: cfg.TelegramPollTimeout,
			RateLimit:   cfg.TelegramRateLimit,
			RateBurst:   cfg.TelegramRateBurst,
		}, logger)
		if err != nil {
			return nil, err
		}
		snd = tg
	}

	// Build the dependency graph.
	repo := postgres.NewReviewRepository(pool)
	admins := service.NewAdmins(cfg.AdminIDs)
	moderationChat := cfg.ModerationChat()

	aggregator, err := service.LoadAggregator(ctx, repo, snd, cfg.ChannelID, logger)
	if err != nil {
		return nil, err
	}
	a.aggregator = aggregator

	gate := service.NewCooldownGate(repo, cfg.SubmissionCooldown)
	sessions := service.NewSessionManager(repo, gate, snd, events, moderationChat, logger)
	moderator := service.NewModerator(repo, snd, aggregator, events, admins, cfg.ChannelID, moderationChat, logger)
	exporter := service.NewExporter(repo)

	a.dispatcher = tghandler.NewDispatcher(sessions, moderator, exporter, aggregator, snd, dedupe, admins, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.redis != nil {
		client := a.redis
		healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		producer := a.producer
		healthHandler.RegisterOptional("kafka", producer.Ping)
	}

	// Ops HTTP router.
	router := httphandler.NewRouter(healthHandler, cfg.PprofAllowedCIDRs, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return a, nil
}

// Run starts polling, the ops server and the aggregate reconciler, and
// blocks until the context is canceled or the ops server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if err := a.aggregator.Refresh(runCtx); err != nil {
		a.logger.Warn("initial channel description update failed", slog.String("error", err.Error()))
	}
	go a.aggregator.RunReconciler(runCtx, a.cfg.AggregateReconcileInterval)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.dispatcher.Run(runCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}
	stop()

	return a.Shutdown(dispatchDone, runErr)
}

// Shutdown waits for in-flight updates, then stops all components.
func (a *App) Shutdown(dispatchDone <-chan struct{}, runErr error) error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("timed out waiting for in-flight updates")
	}

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.close()
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return runErr
}

// close releases connections. It is safe on a partially built App.
func (a *App) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
