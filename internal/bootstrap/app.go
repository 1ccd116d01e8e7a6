package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/notifications/internal/application/reconcile"
	"github.com/cassiomorais/notifications/internal/domain/eventmap"
	"github.com/cassiomorais/notifications/internal/domain/payment"
	"github.com/cassiomorais/notifications/internal/infrastructure/config"
	"github.com/cassiomorais/notifications/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/notifications/internal/infrastructure/redis"
	"github.com/cassiomorais/notifications/internal/infrastructure/resourceapi"
	"github.com/cassiomorais/notifications/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Payments payment.Repository
}

type options struct {
	skipRedis bool
}

// Option customizes New.
type Option func(*options)

// WithoutRedis skips the redis connection, for tools that never touch the queue.
func WithoutRedis() Option {
	return func(o *options) { o.skipRedis = true }
}

func New(ctx context.Context, serviceName string, metricsNamespace string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Logger()
	logger.Info().Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}

	switch cfg.Resource.Backend {
	case config.BackendHTTP:
		app.Payments = resourceapi.NewClient(ctx, &cfg.Resource, metrics)
		logger.Info().Str("base_url", cfg.Resource.BaseURL).Str("project", cfg.Resource.ProjectKey).Msg("Using resource API")
	default:
		pool, err := postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		app.Pool = pool
		app.Payments = postgres.NewPaymentRepository(pool)
		logger.Info().Msg("Connected to PostgreSQL")
	}

	if !o.skipRedis {
		redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = redisClient
		logger.Info().Msg("Connected to Redis")
	}

	return app, nil
}

// NewProcessor wires the reconciliation engine from configuration.
func (a *App) NewProcessor() (*reconcile.ProcessNotificationUseCase, error) {
	return NewProcessor(a.Config, a.Payments, a.Logger, a.Metrics)
}

// NewCompiler builds the update action compiler from the notification settings.
func NewCompiler(cfg *config.Config) (*reconcile.ActionCompiler, error) {
	events, err := eventmap.LoadFile(cfg.Notification.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("load event mappings: %w", err)
	}

	names := make(map[string]payment.LocalizedString, len(cfg.Notification.PaymentMethodNames))
	for method, name := range cfg.Notification.PaymentMethodNames {
		names[method] = payment.LocalizedString(name)
	}

	return reconcile.NewActionCompiler(events, reconcile.CompilerOptions{
		RemoveSensitiveData: cfg.Notification.RemoveSensitiveData,
		PaymentMethodNames:  names,
	}), nil
}

// NewProcessor builds the notification processing pipeline on top of repo.
func NewProcessor(cfg *config.Config, repo payment.Repository, logger zerolog.Logger, metrics *observability.Metrics) (*reconcile.ProcessNotificationUseCase, error) {
	compiler, err := NewCompiler(cfg)
	if err != nil {
		return nil, err
	}
	reconciler := reconcile.NewReconciler(repo, compiler,
		reconcile.WithMaxRetries(cfg.Notification.MaxUpdateRetries),
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(metrics),
	)

	var keys reconcile.KeyProvider
	if cfg.Notification.EnableHMACSignature {
		keys = &cfg.Notification
	}

	return reconcile.NewProcessNotificationUseCase(
		reconcile.NewReferenceResolver(repo), reconciler, keys, logger, metrics,
	), nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
