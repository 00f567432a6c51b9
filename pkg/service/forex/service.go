// Package forex is the traditional exchange-rate feed adapter. A primary
// source is tried with retries, then a secondary source with its own
// retries, then the persisted fallback snapshot.
package forex

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
)

const feedName = "forex"

// Source fetches a live rate table.
type Source interface {
	Name() string
	FetchRates(ctx context.Context, base string) (domain.ForexRates, error)
}

// Config tunes the adapter.
type Config struct {
	CacheTTL       time.Duration
	FallbackMaxAge time.Duration
	// DisableFallback surfaces live failures instead of serving the
	// persisted snapshot.
	DisableFallback bool
	PrimaryRetry    resilience.RetryConfig
	SecondaryRetry  resilience.RetryConfig
	Breaker         resilience.BreakerConfig
}

// DefaultConfig returns a 5 minute cache, 3 primary and 2 secondary
// attempts and a 24h fallback window.
func DefaultConfig() Config {
	primary := resilience.DefaultRetryConfig()
	secondary := resilience.DefaultRetryConfig()
	secondary.MaxAttempts = 2
	return Config{
		CacheTTL:       5 * time.Minute,
		FallbackMaxAge: store.DefaultMaxAge,
		PrimaryRetry:   primary,
		SecondaryRetry: secondary,
		Breaker:        resilience.DefaultBreakerConfig(feedName),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.FallbackMaxAge <= 0 {
		c.FallbackMaxAge = d.FallbackMaxAge
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = feedName
	}
	return c
}

// snapshot is the persisted shape: rate tables keyed by base currency.
type snapshot = map[string]domain.ForexRates

// Service is the forex feed adapter. It is safe for concurrent use.
type Service struct {
	primary   Source
	secondary Source
	store     store.Store
	reporter  *resilience.Reporter
	logger    *slog.Logger
	cfg       Config

	cache   *cache.Memory[domain.ForexRates]
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	now     func() time.Time

	// persistMu serialises the load-merge-save of the fallback snapshot.
	persistMu sync.Mutex

	mu     sync.Mutex
	status service.Status
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source of the adapter and its cache.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the adapter. secondary and st may be nil.
func New(
	primary, secondary Source,
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
		primary:   primary,
		secondary: secondary,
		store:     st,
		reporter:  reporter,
		logger:    logger.With("component", "forex_feed"),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.NewMemory[domain.ForexRates](cfg.CacheTTL).WithClock(s.now)

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

// FetchRates returns the rate table quoted against base.
func (s *Service) FetchRates(ctx context.Context, base string) (domain.ForexRates, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return domain.ForexRates{}, domain.Errorf(domain.KindInvalidInput, "base currency is required")
	}

	if rates, ok := s.cache.Get(base); ok {
		s.logger.Debug("Forex rates served from cache", "base", base)
		s.record(service.OriginCache, nil)
		return clone(rates), nil
	}

	v, err, _ := s.group.Do(base, func() (any, error) {
		return s.fetch(ctx, base)
	})
	if err != nil {
		return domain.ForexRates{}, err
	}
	return clone(v.(domain.ForexRates)), nil
}

func (s *Service) fetch(ctx context.Context, base string) (domain.ForexRates, error) {
	s.breadcrumb("fetching forex rates for %s", base)

	rates, err := resilience.WithFallback(ctx,
		func(ctx context.Context) (domain.ForexRates, error) {
			return s.live(ctx, base)
		},
		resilience.FallbackOptions[domain.ForexRates]{
			GracefulDegradation: !s.cfg.DisableFallback && s.store != nil,
			Load: func(ctx context.Context) (domain.ForexRates, bool) {
				return s.loadFallback(ctx, base)
			},
			OnFallback: func(err error) {
				s.breadcrumb("forex feed degraded to fallback: %v", err)
				s.record(service.OriginFallback, err)
			},
			Logger: s.logger,
		})
	if err != nil {
		s.record(service.OriginNone, err)
		s.report(err, map[string]any{"feed": feedName, "base": base})
		return domain.ForexRates{}, err
	}
	return rates, nil
}

func (s *Service) live(ctx context.Context, base string) (domain.ForexRates, error) {
	rates, err := resilience.Guard(s.breaker, func() (domain.ForexRates, error) {
		rates, perr := s.fromSource(ctx, s.primary, base, s.cfg.PrimaryRetry)
		if perr == nil {
			return rates, nil
		}
		if s.secondary == nil {
			return domain.ForexRates{}, perr
		}
		s.logger.Warn("Primary forex source failed, trying secondary",
			"primary", s.primary.Name(), "secondary", s.secondary.Name(), "error", perr)
		s.breadcrumb("forex primary %s failed: %v", s.primary.Name(), perr)

		rates, serr := s.fromSource(ctx, s.secondary, base, s.cfg.SecondaryRetry)
		if serr == nil {
			return rates, nil
		}
		return domain.ForexRates{}, resilience.Enhance(errors.Join(perr, serr),
			"all forex sources failed", map[string]any{"base": base})
	})
	if err != nil {
		return domain.ForexRates{}, err
	}

	s.cache.Set(base, rates)
	s.persist(ctx, rates)
	s.record(service.OriginLive, nil)
	s.breadcrumb("forex rates updated for %s", base)
	s.logger.Info("Forex rates fetched", "base", base, "count", len(rates.Rates))
	return rates, nil
}

func (s *Service) fromSource(ctx context.Context, src Source, base string, cfg resilience.RetryConfig) (domain.ForexRates, error) {
	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Retrying forex request", "source", src.Name(), "attempt", attempt, "delay", delay, "error", err)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	return resilience.Retry(ctx, func(ctx context.Context) (domain.ForexRates, error) {
		rates, err := src.FetchRates(ctx, base)
		if err != nil {
			return domain.ForexRates{}, err
		}
		if !strings.EqualFold(rates.Base, base) {
			return domain.ForexRates{}, domain.Errorf(domain.KindInvalidData,
				"%s returned rates for %s, want %s", src.Name(), rates.Base, base)
		}
		if len(rates.Rates) == 0 {
			return domain.ForexRates{}, domain.Errorf(domain.KindInvalidData, "%s returned no rates", src.Name())
		}
		if err := rates.Validate(); err != nil {
			return domain.ForexRates{}, err
		}
		rates.Base = base
		if _, ok := rates.Rates[base]; !ok {
			rates.Rates = maps.Clone(rates.Rates)
			rates.Rates[base] = 1
		}
		return rates, nil
	}, cfg)
}

// persist stores the table under its base, keeping tables for other bases
// that are still within the fallback window.
func (s *Service) persist(ctx context.Context, rates domain.ForexRates) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	now := s.now()
	tables := snapshot{}
	if snap, err := store.Load[snapshot](ctx, s.store, store.ForexRatesKey, s.cfg.FallbackMaxAge, now); err == nil && snap.Data != nil {
		tables = snap.Data
	}
	tables[rates.Base] = rates
	if err := store.Save(ctx, s.store, store.ForexRatesKey, tables, now); err != nil {
		s.logger.Warn("Failed to persist forex fallback snapshot", "error", err)
	}
}

func (s *Service) loadFallback(ctx context.Context, base string) (domain.ForexRates, bool) {
	if s.store == nil {
		return domain.ForexRates{}, false
	}
	snap, err := store.Load[snapshot](ctx, s.store, store.ForexRatesKey, s.cfg.FallbackMaxAge, s.now())
	if err != nil {
		s.logger.Debug("No usable forex fallback snapshot", "error", err)
		return domain.ForexRates{}, false
	}
	rates, ok := snap.Data[base]
	if !ok || len(rates.Rates) == 0 {
		s.logger.Debug("Forex fallback snapshot has no table for base", "base", base)
		return domain.ForexRates{}, false
	}
	s.logger.Info("Using forex fallback snapshot", "base", base, "saved_at", snap.SavedAt())
	return rates, true
}

func clone(r domain.ForexRates) domain.ForexRates {
	r.Rates = maps.Clone(r.Rates)
	return r
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
	name := s.primary.Name()
	if s.secondary != nil {
		name += ", " + s.secondary.Name()
	}
	h := service.Health{
		Feed:    fmt.Sprintf("%s (%s)", feedName, name),
		Circuit: s.breaker.Stats(),
	}
	if e, ok := s.cache.Newest(); ok {
		h.Cached = true
		h.CacheAge = e.Age(s.now())
	}
	s.mu.Lock()
	s.status.Fill(&h)
	s.mu.Unlock()
	return h
}

// Reset clears the cache and the circuit breaker.
func (s *Service) Reset() {
	s.cache.Clear()
	s.breaker.Reset()
	s.mu.Lock()
	s.status = service.Status{}
	s.mu.Unlock()
	s.logger.Info("Forex feed reset")
}
