package bootstrap

import (
	"context"
	"fmt"
	"io"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/config"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/integrations/internal/infrastructure/redis"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/cassiomorais/integrations/internal/repository/postgres"
	"github.com/cassiomorais/integrations/internal/vault"
	"github.com/cassiomorais/integrations/internal/watchlist"
	"github.com/cassiomorais/integrations/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	logCloser io.Closer
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	out, logCloser := observability.LogWriter(observability.FileOutput{
		Path:       cfg.Observability.LogFile,
		MaxSizeMB:  cfg.Observability.LogFileMaxSizeMB,
		MaxBackups: cfg.Observability.LogFileBackups,
		MaxAgeDays: cfg.Observability.LogFileMaxAge,
	})
	logger := observability.InitLogger(cfg.Observability.LogLevel, out).With().Str("service", serviceName).Logger()
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

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	if cfg.Database.ApplicationName == "" {
		cfg.Database.ApplicationName = serviceName
	}
	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		logCloser.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Redis:     redisClient,
		Metrics:   metrics,
		logCloser: logCloser,
	}, nil
}

// Services is the wired application layer shared by the API and the worker.
type Services struct {
	Deps        integrationApp.LifecycleDeps
	Lifecycle   *integrationApp.Lifecycle
	AccessGate  *integrationApp.AccessGate
	Reconciler  *integrationApp.Reconciler
	TxManager   *postgres.TxManager
	Audit       *postgres.AuditRepository
	Idempotency *postgres.IdempotencyRepository
}

func (a *App) Services() (*Services, error) {
	cfg := a.Config

	v, err := vault.New(cfg.Vault.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	signer := partner.NewSigner(cfg.Partner.Host, cfg.Partner.AuthRedirectURL, cfg.Partner.CancelRedirectURL)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Partner.MaxAttempts
	retryCfg.InitialDelay = cfg.Partner.RetryDelay
	client := partner.NewClient(signer, partner.ClientConfig{
		Timeout:          cfg.Partner.Timeout,
		Retry:            retryCfg,
		BreakerThreshold: cfg.Partner.CircuitBreakerThreshold,
		BreakerTimeout:   cfg.Partner.CircuitBreakerTimeout,
	}, a.Logger, a.Metrics)

	locker := infraRedis.NewLocker(a.Redis, cfg.WatchList.LockTTL)
	watch := watchlist.NewFileWatchList(cfg.WatchList.Path, cfg.WatchList.LockKey, locker, a.Logger)

	repo := postgres.NewIntegrationRepository(a.Pool)
	txManager := postgres.NewTxManager(a.Pool)
	auditRepo := postgres.NewAuditRepository(a.Pool)

	deps := integrationApp.LifecycleDeps{
		Repo:      repo,
		Tx:        txManager,
		Vault:     v,
		Signer:    signer,
		Partner:   client,
		WatchList: watch,
		Audit:     auditRepo,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	}
	tokens := integrationApp.NewPartnerTokenSource(repo, txManager, client, auditRepo, cfg.Partner.AccessTokenTTL)

	return &Services{
		Deps:        deps,
		Lifecycle:   integrationApp.NewLifecycle(deps),
		AccessGate:  integrationApp.NewAccessGate(repo, v, tokens, cfg.Partner.AccessTokenTTL, a.Logger, a.Metrics),
		Reconciler:  integrationApp.NewReconciler(deps, cfg.Worker.DeletionGracePeriod, cfg.Worker.BatchSize),
		TxManager:   txManager,
		Audit:       auditRepo,
		Idempotency: postgres.NewIdempotencyRepository(a.Pool),
	}, nil
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
	a.logCloser.Close()
}
