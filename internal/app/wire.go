package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/sudomarket/internal/blob/s3"
	"github.com/alanyoungcy/sudomarket/internal/cache/redis"
	"github.com/alanyoungcy/sudomarket/internal/config"
	"github.com/alanyoungcy/sudomarket/internal/deploy"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/alanyoungcy/sudomarket/internal/notify"
	"github.com/alanyoungcy/sudomarket/internal/oracle"
	"github.com/alanyoungcy/sudomarket/internal/pipeline"
	"github.com/alanyoungcy/sudomarket/internal/platform/pyth"
	"github.com/alanyoungcy/sudomarket/internal/platform/sui"
	"github.com/alanyoungcy/sudomarket/internal/service"
	"github.com/alanyoungcy/sudomarket/internal/simulate"
	"github.com/alanyoungcy/sudomarket/internal/store/postgres"
)

// Dependencies bundles everything the modes need. The ledger-facing part
// is always present; the storage-backed fields are nil when their backend
// is disabled.
type Dependencies struct {
	Deployment *deploy.Deployment
	IDs        *deploy.Identifiers
	Oracle     *oracle.Oracle
	Valuation  *service.ValuationService
	Market     *service.MarketReader
	Rates      service.RateSource

	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	ValuationStore domain.ValuationStore
	AuditLog       domain.AuditLog

	BlobReader domain.BlobReader
	Archiver   *pipeline.Archiver

	Alerts domain.Alerter
}

// Wire constructs every dependency from cfg and returns them together with
// a cleanup function releasing connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	network, err := deploy.ParseNetwork(cfg.Network)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	dep, ids, err := deploy.Load(cfg.Deployment.Dir, network)
	if err != nil {
		return fail(fmt.Errorf("wire: deployment: %w", err))
	}
	deps := &Dependencies{Deployment: dep, IDs: ids}

	// --- Ledger and price service ---
	ledger, err := sui.NewClient(ctx, cfg.Sui.RPCURL, cfg.Sui.RequestTimeout.Duration, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: sui: %w", err))
	}
	closers = append(closers, ledger.Close)

	hermes := pyth.NewHermesClient(cfg.Pyth.HermesURL, cfg.Pyth.RequestTimeout.Duration)
	injector := pyth.NewInjector(pyth.Contracts{
		PythPackage:     dep.Pyth.Package,
		PythState:       dep.Pyth.State,
		WormholePackage: dep.Pyth.Wormhole.Package,
		WormholeState:   dep.Pyth.Wormhole.State,
	}, ledger, cfg.Pyth.UpdateFee)

	deps.Oracle = oracle.New(ids, ledger, hermes, injector, logger, oracle.WithMaxSkew(cfg.Oracle.MaxSkew.Duration))
	executor := simulate.NewExecutor(ledger, ledger, logger)
	deps.Valuation = service.NewValuationService(dep, ids, ledger, deps.Oracle, executor, cfg.Sui.Sender, logger)
	deps.Market = service.NewMarketReader(dep, ids, ledger, deps.Valuation, logger)
	deps.Rates = deps.Valuation

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.RedisKeyPrefix(),
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Rates = service.NewCachedRates(deps.Valuation, redis.NewRateCache(redisClient), cfg.Cache.RateTTL.Duration, logger)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- PostgreSQL ---
	var history *postgres.ValuationStore
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		history = postgres.NewValuationStore(pgClient.Pool(), cfg.Network)
		deps.ValuationStore = history
		deps.AuditLog = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- Alerts ---
	if cfg.Notify.Enabled() {
		deps.Alerts = newNotifier(cfg.Notify, logger)
	}

	// --- S3 ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader

		if history != nil {
			archiver := s3blob.NewValuationArchiver(history, s3blob.NewWriter(s3Client), reader, deps.AuditLog, cfg.Network)
			deps.Archiver = pipeline.NewArchiver(archiver, deps.LockManager, cfg.Monitor.ArchiveAfter.Duration, cfg.Network, logger)
			if deps.Alerts != nil {
				deps.Archiver.WithAlerts(deps.Alerts)
			}
		}
	}

	return deps, cleanup, nil
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}
