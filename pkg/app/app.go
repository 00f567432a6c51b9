// Package app wires the feeds, the comparator and the event bus into an
// application object and keeps per-user comparison state in a Session.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/amirasaad/btcfx/pkg/config"
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/eventbus"
	"github.com/amirasaad/btcfx/pkg/exchange"
	"github.com/amirasaad/btcfx/pkg/resilience"
	"github.com/amirasaad/btcfx/pkg/service"
	"github.com/amirasaad/btcfx/pkg/store"
	"golang.org/x/sync/errgroup"
)

// PriceFeed is the Bitcoin price adapter as the app uses it.
type PriceFeed interface {
	FetchPrices(ctx context.Context, codes []string, forceRefresh bool) (domain.BitcoinPrices, error)
	Health() service.Health
	Reset()
}

// RateFeed is the forex adapter as the app uses it.
type RateFeed interface {
	FetchRates(ctx context.Context, base string) (domain.ForexRates, error)
	Health() service.Health
	Reset()
}

// Deps contains everything the App needs.
type Deps struct {
	Bitcoin  PriceFeed
	Forex    RateFeed
	EventBus eventbus.Bus
	// Store holds the fallback snapshots.
	Store    store.Store
	Reporter *resilience.Reporter
	Logger   *slog.Logger
}

type App struct {
	Deps   *Deps
	Config *config.App
}

// New creates the App. A nil bus, reporter or logger is replaced with a
// default one.
func New(deps *Deps, cfg *config.App) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reporter == nil {
		deps.Reporter = resilience.NewReporter(deps.Logger, resilience.DefaultMaxBreadcrumbs)
	}
	if deps.EventBus == nil {
		deps.EventBus = eventbus.NewMemory(deps.Logger)
	}
	app := &App{Deps: deps, Config: cfg}
	setupEventBus(deps.EventBus, deps.Reporter, deps.Logger)
	return app
}

func (a *App) threshold() float64 {
	if a.Config == nil {
		return exchange.DefaultArbitrageThreshold
	}
	return a.Config.Comparison.ArbitrageThreshold
}

// Snapshot is the data one comparison is computed from.
type Snapshot struct {
	Prices domain.BitcoinPrices
	Rates  domain.ForexRates
}

// Fetch loads Bitcoin prices for codes and the forex table for base
// concurrently. Both fetches run to completion; the result holds whatever
// succeeded and the error joins the failures.
func (a *App) Fetch(ctx context.Context, codes []string, base string, forceRefresh bool) (Snapshot, error) {
	snap, priceErr, rateErr := a.fetchBoth(ctx, codes, base, forceRefresh)
	var errs []error
	if priceErr != nil {
		errs = append(errs, fmt.Errorf("%s feed: %w", FeedBitcoin, priceErr))
	}
	if rateErr != nil {
		errs = append(errs, fmt.Errorf("%s feed: %w", FeedForex, rateErr))
	}
	return snap, errors.Join(errs...)
}

func (a *App) fetchBoth(ctx context.Context, codes []string, base string, forceRefresh bool) (snap Snapshot, priceErr, rateErr error) {
	var g errgroup.Group
	g.Go(func() error {
		snap.Prices, priceErr = a.Deps.Bitcoin.FetchPrices(ctx, codes, forceRefresh)
		return nil
	})
	g.Go(func() error {
		snap.Rates, rateErr = a.Deps.Forex.FetchRates(ctx, base)
		return nil
	})
	_ = g.Wait()
	return snap, priceErr, rateErr
}

// Compare fetches current data and compares converting amount from source
// to target.
func (a *App) Compare(ctx context.Context, source, target string, amount float64) (*domain.Comparison, error) {
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	if source == "" || target == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "source and target currencies are required")
	}

	snap, err := a.Fetch(ctx, []string{source, target}, source, false)
	if err != nil {
		a.Deps.Reporter.AddBreadcrumb("compare %s/%s: fetch failed", source, target)
		return nil, err
	}
	c, err := exchange.CompareRates(source, target, amount, snap.Prices, snap.Rates,
		exchange.WithThreshold(a.threshold()))
	if err != nil {
		return nil, err
	}
	a.emit(ctx, ComparisonComputed{Comparison: *c})
	return c, nil
}

// Batch compares one unit of each pair. Rates are fetched against the first
// pair's source and cross rates are derived from that table.
func (a *App) Batch(ctx context.Context, pairs []domain.Pair) ([]domain.Comparison, error) {
	if len(pairs) == 0 {
		return []domain.Comparison{}, nil
	}
	codes := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		codes = append(codes, p.Source, p.Target)
	}
	base := strings.ToUpper(strings.TrimSpace(pairs[0].Source))

	snap, err := a.Fetch(ctx, codes, base, false)
	if err != nil {
		return nil, err
	}
	results, err := exchange.BatchCompareRates(pairs, snap.Prices, snap.Rates,
		exchange.WithThreshold(a.threshold()))
	if err != nil {
		return nil, err
	}
	for _, c := range results {
		a.emit(ctx, ComparisonComputed{Comparison: c})
	}
	return results, nil
}

// Health returns the state of both feeds keyed by feed name.
func (a *App) Health() map[string]service.Health {
	return map[string]service.Health{
		FeedBitcoin: a.Deps.Bitcoin.Health(),
		FeedForex:   a.Deps.Forex.Health(),
	}
}

// Reset clears caches, cool-downs and breakers of both feeds.
func (a *App) Reset() {
	a.Deps.Bitcoin.Reset()
	a.Deps.Forex.Reset()
	a.Deps.Reporter.ClearBreadcrumbs()
}

// Close releases the fallback store and the event bus when they hold
// connections.
func (a *App) Close() error {
	var errs []error
	for _, r := range []any{a.Deps.Store, a.Deps.EventBus} {
		if c, ok := r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (a *App) emit(ctx context.Context, e eventbus.Event) {
	if err := a.Deps.EventBus.Emit(ctx, e); err != nil {
		a.Deps.Logger.Warn("Event handler error", "event_type", e.Type(), "error", err)
	}
}
