package app

import (
	"context"
	"log/slog"

	"github.com/amirasaad/btcfx/pkg/eventbus"
	"github.com/amirasaad/btcfx/pkg/resilience"
)

// setupEventBus registers the handlers every App carries: logging and
// breadcrumbs for the error reporter.
func setupEventBus(bus eventbus.Bus, reporter *resilience.Reporter, logger *slog.Logger) {
	bus.Register(EventFeedFailed, func(_ context.Context, e eventbus.Event) error {
		ev := e.(FeedFailed)
		logger.Warn("Feed failed",
			"feed", ev.Feed,
			"kind", ev.Kind,
			"recoverable", ev.Recoverable,
			"error", ev.Err)
		reporter.AddBreadcrumb("%s feed failed: %s", ev.Feed, ev.Kind)
		return nil
	})

	bus.Register(EventPricesUpdated, func(_ context.Context, e eventbus.Event) error {
		logger.Debug("Prices updated", "feed", e.(PricesUpdated).Feed)
		return nil
	})

	bus.Register(EventComparisonComputed, func(_ context.Context, e eventbus.Event) error {
		c := e.(ComparisonComputed).Comparison
		logger.Info("Comparison computed",
			"pair", c.Source+"/"+c.Target,
			"amount", c.Amount,
			"traditional_rate", c.TraditionalRate,
			"bitcoin_rate", c.BitcoinRate,
			"difference_pct", c.PercentageDifference,
			"better", c.BetterMethod,
			"arbitrage", c.ArbitrageOpportunity)
		if c.ArbitrageOpportunity {
			reporter.AddBreadcrumb("arbitrage opportunity on %s/%s: %.2f%%", c.Source, c.Target, c.PercentageDifference)
		}
		return nil
	})
}
