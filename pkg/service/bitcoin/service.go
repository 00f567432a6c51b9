// Package bitcoin is the Bitcoin price feed adapter. It layers a short TTL
// cache, request spacing, a rate-limit cool-down, a circuit breaker, retries
// and a persisted fallback snapshot over a price Source.
package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/btcfx/pkg/cache"
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/resilience"
	"github.com/amirasaad/btcfx/pkg/service"
	"github.com/amirasaad/btcfx/pkg/store"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const feedName = "bitcoin"

// Source fetches live Bitcoin prices.
type Source interface {
	Name() string
	FetchPrices(ctx context.Context, codes []string) (domain.BitcoinPrices, error)
}

// Config tunes the adapter. Zero durations take the defaults from
// DefaultConfig, except MinInterval where zero disables request spacing.
type Config struct {
	CacheTTL          time.Duration
	MinInterval       time.Duration
	RateLimitCooldown time.Duration
	FallbackMaxAge    time.Duration
	// DisableFallback surfaces live failures instead of serving the
	// persisted snapshot.
	DisableFallback bool
	Retry           resilience.RetryConfig
	Breaker         resilience.BreakerConfig
}

// DefaultConfig returns a 30s cache, 1.2s request spacing, a 60s rate-limit
// cool-down and a 24h fallback window.
func DefaultConfig() Config {
	return Config{
		CacheTTL:          30 * time.Second,
		MinInterval:       1200 * time.Millisecond,
		RateLimitCooldown: time.Minute,
		FallbackMaxAge:    store.DefaultMaxAge,
		Retry:             resilience.DefaultRetryConfig(),
		Breaker:           resilience.DefaultBreakerConfig(feedName),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.MinInterval < 0 {
		c.MinInterval = 0
	}
	if c.RateLimitCooldown <= 0 {
		c.RateLimitCooldown = d.RateLimitCooldown
	}
	if c.FallbackMaxAge <= 0 {
		c.FallbackMaxAge = d.FallbackMaxAge
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = feedName
	}
	return c
}

// Service is the Bitcoin feed adapter. It is safe for concurrent use.
type Service struct {
	source   Source
	store    store.Store
	reporter *resilience.Reporter
	logger   *slog.Logger
	cfg      Config

	cache   *cache.Memory[domain.BitcoinPrices]
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time

	// persistMu serialises the load-merge-save of the fallback snapshot.
	persistMu sync.Mutex

	mu               sync.Mutex
	rateLimitedUntil time.Time
	status           service.Status
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source of the adapter and its cache.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the adapter. st may be nil, in which case nothing is persisted
// and there is no fallback. reporter may be nil.
func New(
	source Source,
	st store.Store,
	reporter *resilience.Reporter,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	s := &Service{
		source:   source,
		store:    st,
		reporter: reporter,
		logger:   logger.With("component", "bitcoin_feed", "source", source.Name()),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cache = cache.NewMemory[domain.BitcoinPrices](cfg.CacheTTL).WithClock(s.now)
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	s.limiter = rate.NewLimiter(limit, 1)

	breakerCfg := cfg.Breaker
	if breakerCfg.Now == nil {
		breakerCfg.Now = s.now
	}
	userHook := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		s.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from, "to", to)
		s.breadcrumb("circuit %s: %s -> %s", name, from, to)
		if userHook != nil {
			userHook(name, from, to)
		}
	}
	s.breaker = resilience.NewCircuitBreaker(breakerCfg)
	return s
}

// CacheKey is the cache key for a set of currency codes.
func CacheKey(codes []string) string {
	return strings.Join(domain.NormalizeCodes(codes), ",")
}

// FetchPrices returns the Bitcoin price in each requested currency. Fresh
// cached prices are returned unless forceRefresh is set. When every live
// attempt fails, the persisted snapshot is served if it holds all codes.
func (s *Service) FetchPrices(ctx context.Context, codes []string, forceRefresh bool) (domain.BitcoinPrices, error) {
	codes = domain.NormalizeCodes(codes)
	if len(codes) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "at least one currency code is required")
	}
	key := strings.Join(codes, ",")

	if !forceRefresh {
		if prices, ok := s.cache.Get(key); ok {
			s.logger.Debug("Bitcoin prices served from cache", "currencies", key)
			s.record(service.OriginCache, nil)
			return maps.Clone(prices), nil
		}
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, codes, key)
	})
	if shared {
		s.logger.Debug("Bitcoin fetch shared with a concurrent caller", "currencies", key)
	}
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(domain.BitcoinPrices)), nil
}

func (s *Service) fetch(ctx context.Context, codes []string, key string) (domain.BitcoinPrices, error) {
	s.breadcrumb("fetching bitcoin prices for %s", key)

	prices, err := resilience.WithFallback(ctx,
		func(ctx context.Context) (domain.BitcoinPrices, error) {
			return s.live(ctx, codes)
		},
		resilience.FallbackOptions[domain.BitcoinPrices]{
			GracefulDegradation: !s.cfg.DisableFallback && s.store != nil,
			Load: func(ctx context.Context) (domain.BitcoinPrices, bool) {
				return s.loadFallback(ctx, codes)
			},
			OnFallback: func(err error) {
				s.breadcrumb("bitcoin feed degraded to fallback: %v", err)
				s.record(service.OriginFallback, err)
			},
			Logger: s.logger,
		})
	if err != nil {
		s.record(service.OriginNone, err)
		s.report(err, map[string]any{"feed": feedName, "currencies": key})
		return nil, err
	}
	return prices, nil
}

// live runs one guarded, retried request unless a rate-limit cool-down is
// active.
func (s *Service) live(ctx context.Context, codes []string) (domain.BitcoinPrices, error) {
	if until, limited := s.coolingDown(); limited {
		return nil, domain.Errorf(domain.KindRateLimited,
			"bitcoin feed is rate limited until %s", until.Format(time.RFC3339)).
			With("retry_after", until.Sub(s.now()))
	}

	retryCfg := s.cfg.Retry
	userOnRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Retrying bitcoin price request", "attempt", attempt, "delay", delay, "error", err)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}

	prices, err := resilience.Guard(s.breaker, func() (domain.BitcoinPrices, error) {
		return resilience.Retry(ctx, func(ctx context.Context) (domain.BitcoinPrices, error) {
			return s.request(ctx, codes)
		}, retryCfg)
	})
	if err != nil {
		return nil, err
	}

	key := strings.Join(codes, ",")
	s.cache.Set(key, prices)
	s.persist(ctx, prices)
	s.record(service.OriginLive, nil)
	s.breadcrumb("bitcoin prices updated for %s", key)
	s.logger.Info("Bitcoin prices fetched", "currencies", key)
	return prices, nil
}

func (s *Service) request(ctx context.Context, codes []string) (domain.BitcoinPrices, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, domain.NewError(domain.KindTimeout, "waiting for request slot", err)
	}
	prices, err := s.source.FetchPrices(ctx, codes)
	if err != nil {
		if domain.IsKind(err, domain.KindRateLimited) {
			s.startCooldown(err)
		}
		return nil, err
	}
	if !prices.Has(codes...) {
		return nil, domain.Errorf(domain.KindInvalidData, "bitcoin feed response is missing requested currencies")
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	return prices.Subset(codes), nil
}

func (s *Service) startCooldown(err error) {
	wait := s.cfg.RateLimitCooldown
	var derr *domain.Error
	if errors.As(err, &derr) {
		if ra, ok := derr.Context["retry_after"].(time.Duration); ok && ra > wait {
			wait = ra
		}
	}
	until := s.now().Add(wait)
	s.mu.Lock()
	s.rateLimitedUntil = until
	s.mu.Unlock()
	s.logger.Warn("Bitcoin feed rate limited, pausing live requests", "until", until)
	s.breadcrumb("bitcoin feed rate limited until %s", until.Format(time.RFC3339))
}

func (s *Service) coolingDown() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateLimitedUntil.IsZero() || !s.now().Before(s.rateLimitedUntil) {
		return time.Time{}, false
	}
	return s.rateLimitedUntil, true
}

// persist merges prices into the stored snapshot so the fallback covers
// every currency seen within its window.
func (s *Service) persist(ctx context.Context, prices domain.BitcoinPrices) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	now := s.now()
	merged := make(domain.BitcoinPrices, len(prices))
	if snap, err := store.Load[domain.BitcoinPrices](ctx, s.store, store.BitcoinPricesKey, s.cfg.FallbackMaxAge, now); err == nil {
		maps.Copy(merged, snap.Data)
	}
	maps.Copy(merged, prices)
	if err := store.Save(ctx, s.store, store.BitcoinPricesKey, merged, now); err != nil {
		s.logger.Warn("Failed to persist bitcoin fallback snapshot", "error", err)
	}
}

func (s *Service) loadFallback(ctx context.Context, codes []string) (domain.BitcoinPrices, bool) {
	if s.store == nil {
		return nil, false
	}
	snap, err := store.Load[domain.BitcoinPrices](ctx, s.store, store.BitcoinPricesKey, s.cfg.FallbackMaxAge, s.now())
	if err != nil {
		s.logger.Debug("No usable bitcoin fallback snapshot", "error", err)
		return nil, false
	}
	if !snap.Data.Has(codes...) {
		s.logger.Debug("Bitcoin fallback snapshot lacks requested currencies", "currencies", codes)
		return nil, false
	}
	s.logger.Info("Using bitcoin fallback snapshot", "saved_at", snap.SavedAt(), "age", s.now().Sub(snap.SavedAt()))
	return snap.Data.Subset(codes), true
}

func (s *Service) record(origin service.Origin, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if origin != service.OriginNone {
		s.status.Succeeded(origin, s.now())
	}
	s.status.Failed(err, s.now())
}

func (s *Service) breadcrumb(format string, args ...any) {
	if s.reporter != nil {
		s.reporter.AddBreadcrumb(format, args...)
	}
}

func (s *Service) report(err error, ctx map[string]any) {
	if s.reporter != nil {
		s.reporter.Report(err, ctx)
	}
}

// Health returns the adapter's current state.
func (s *Service) Health() service.Health {
	h := service.Health{
		Feed:    fmt.Sprintf("%s (%s)", feedName, s.source.Name()),
		Circuit: s.breaker.Stats(),
	}
	if e, ok := s.cache.Newest(); ok {
		h.Cached = true
		h.CacheAge = e.Age(s.now())
	}
	h.RateLimitedUntil, h.RateLimited = s.coolingDown()

	s.mu.Lock()
	s.status.Fill(&h)
	s.mu.Unlock()
	return h
}

// Reset clears the cache, the cool-down and the circuit breaker.
func (s *Service) Reset() {
	s.cache.Clear()
	s.breaker.Reset()
	s.mu.Lock()
	s.rateLimitedUntil = time.Time{}
	s.status = service.Status{}
	s.mu.Unlock()
	s.logger.Info("Bitcoin feed reset")
}
