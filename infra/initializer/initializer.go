package initializer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	infra_eventbus "github.com/amirasaad/btcfx/infra/eventbus"
	infra_store "github.com/amirasaad/btcfx/infra/store"
	"github.com/amirasaad/btcfx/infra/provider/coingecko"
	"github.com/amirasaad/btcfx/infra/provider/exchangerateapi"
	"github.com/amirasaad/btcfx/infra/provider/openrates"
	"github.com/amirasaad/btcfx/pkg/app"
	"github.com/amirasaad/btcfx/pkg/config"
	"github.com/amirasaad/btcfx/pkg/eventbus"
	"github.com/amirasaad/btcfx/pkg/resilience"
	"github.com/amirasaad/btcfx/pkg/service/bitcoin"
	"github.com/amirasaad/btcfx/pkg/service/forex"
	"github.com/amirasaad/btcfx/pkg/store"
)

// InitializeDependencies builds the logger, the fallback store and both
// feed adapters from cfg.
func InitializeDependencies(cfg *config.App) (*app.Deps, error) {
	logger := SetupLogger(cfg.Log)
	return BuildDeps(cfg, logger)
}

// BuildDeps is InitializeDependencies with a caller supplied logger.
func BuildDeps(cfg *config.App, logger *slog.Logger) (*app.Deps, error) {
	deps := &app.Deps{Logger: logger}
	deps.Reporter = resilience.NewReporter(logger, cfg.Reporter.MaxBreadcrumbs)
	deps.EventBus = initEventBus(cfg, logger)

	st, err := initStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fallback store: %w", err)
	}
	deps.Store = st

	coinGecko := coingecko.New(cfg.Bitcoin.ApiUrl, cfg.Bitcoin.HTTPTimeout, logger)
	deps.Bitcoin = bitcoin.New(coinGecko, st, deps.Reporter, logger, bitcoinConfig(cfg))

	primary := exchangerateapi.New(cfg.Forex.PrimaryUrl, cfg.Forex.HTTPTimeout, logger)
	var secondary forex.Source
	if cfg.Forex.SecondaryUrl != "" {
		secondary = openrates.New(cfg.Forex.SecondaryUrl, cfg.Forex.HTTPTimeout, logger)
	}
	deps.Forex = forex.New(primary, secondary, st, deps.Reporter, logger, forexConfig(cfg))

	logger.Info("Dependencies initialized",
		"fallback_backend", cfg.Fallback.Backend,
		"fallback_enabled", cfg.Fallback.Enabled,
		"bitcoin_source", coinGecko.Name(),
		"forex_secondary", secondary != nil)
	return deps, nil
}

// initEventBus returns the Redis stream bus when configured and reachable,
// otherwise the in-memory bus.
func initEventBus(cfg *config.App, logger *slog.Logger) eventbus.Bus {
	if cfg.EventBus.Driver != "redis" {
		return eventbus.NewMemory(logger)
	}
	bus, err := infra_eventbus.NewRedisBus(cfg.Redis.URL, cfg.EventBus.StreamPrefix, cfg.EventBus.MaxLen, logger)
	if err != nil {
		logger.Warn("Redis event bus unavailable, using in-memory bus", "error", err)
		return eventbus.NewMemory(logger)
	}
	logger.Info("Publishing events to Redis streams", "prefix", cfg.EventBus.StreamPrefix)
	return bus
}

// initStore picks the fallback store backend. A Redis backend that cannot be
// reached degrades to the in-memory store.
func initStore(cfg *config.App, logger *slog.Logger) (store.Store, error) {
	switch cfg.Fallback.Backend {
	case "", "memory":
		return store.NewMemory(), nil

	case "redis":
		rs, err := infra_store.NewRedisStore(cfg.Redis.URL, cfg.Fallback.KeyPrefix, logger)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, using in-memory fallback store", "error", err)
			_ = rs.Close()
			return store.NewMemory(), nil
		}
		return rs, nil

	case "sqlite", "postgres":
		db, err := infra_store.NewDBConnection(cfg.Fallback.Backend, cfg.DatabaseURL(), cfg.Env)
		if err != nil {
			return nil, err
		}
		ss := infra_store.NewSQLStore(db)
		if err := ss.Migrate(); err != nil {
			_ = ss.Close()
			return nil, fmt.Errorf("migrate fallback store: %w", err)
		}
		return ss, nil

	default:
		return nil, fmt.Errorf("unsupported fallback backend %q", cfg.Fallback.Backend)
	}
}

func retryConfig(r config.Retry) resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = r.MaxAttempts
	rc.BaseDelay = r.BaseDelay
	rc.MaxDelay = r.MaxDelay
	return rc
}

func breakerConfig(cfg *config.App, name string) resilience.BreakerConfig {
	bc := resilience.DefaultBreakerConfig(name)
	bc.FailureThreshold = cfg.Breaker.FailureThreshold
	bc.RecoveryTimeout = cfg.Breaker.RecoveryTimeout
	return bc
}

func bitcoinConfig(cfg *config.App) bitcoin.Config {
	return bitcoin.Config{
		CacheTTL:          cfg.Bitcoin.CacheTTL,
		MinInterval:       cfg.Bitcoin.MinInterval,
		RateLimitCooldown: cfg.Bitcoin.RateLimitCooldown,
		FallbackMaxAge:    cfg.Fallback.MaxAge,
		DisableFallback:   !cfg.Fallback.Enabled,
		Retry:             retryConfig(cfg.Bitcoin.Retry),
		Breaker:           breakerConfig(cfg, "bitcoin"),
	}
}

func forexConfig(cfg *config.App) forex.Config {
	return forex.Config{
		CacheTTL:        cfg.Forex.CacheTTL,
		FallbackMaxAge:  cfg.Fallback.MaxAge,
		DisableFallback: !cfg.Fallback.Enabled,
		PrimaryRetry:    retryConfig(cfg.Forex.PrimaryRetry),
		SecondaryRetry:  retryConfig(cfg.Forex.SecondaryRetry.Retry()),
		Breaker:         breakerConfig(cfg, "forex"),
	}
}
