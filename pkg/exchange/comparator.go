package exchange

import (
	"fmt"
	"math"
	"strings"

	"github.com/amirasaad/btcfx/pkg/domain"
)

type compareOptions struct {
	threshold float64
}

// Option tunes CompareRates and BatchCompareRates.
type Option func(*compareOptions)

// WithThreshold sets the arbitrage threshold in percent.
func WithThreshold(threshold float64) Option {
	return func(o *compareOptions) {
		o.threshold = threshold
	}
}

func buildOptions(opts []Option) compareOptions {
	o := compareOptions{threshold: DefaultArbitrageThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CompareRates converts amount from source to target with both methods and
// classifies the outcome.
func CompareRates(
	source, target string,
	amount float64,
	prices domain.BitcoinPrices,
	rates domain.ForexRates,
	opts ...Option,
) (*domain.Comparison, error) {
	o := buildOptions(opts)
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	if source == "" || target == "" {
		return nil, domain.Errorf(domain.KindInvalidInput,
			"source and target currencies are required").
			With("source", source).
			With("target", target)
	}
	if math.IsNaN(o.threshold) || o.threshold < 0 {
		return nil, domain.Errorf(domain.KindInvalidInput,
			"arbitrage threshold must be non-negative, got %v", o.threshold)
	}

	bitcoinRate, err := BitcoinImpliedRate(source, target, prices)
	if err != nil {
		return nil, err
	}
	traditionalRate, err := TraditionalRate(source, target, rates)
	if err != nil {
		return nil, err
	}
	pct, err := PercentageDifference(bitcoinRate, traditionalRate)
	if err != nil {
		return nil, err
	}
	amounts, err := ConvertedAmounts(amount, bitcoinRate, traditionalRate)
	if err != nil {
		return nil, err
	}

	return &domain.Comparison{
		Source:               source,
		Target:               target,
		Amount:               amount,
		TraditionalRate:      traditionalRate,
		BitcoinRate:          bitcoinRate,
		TraditionalAmount:    amounts.TraditionalAmount,
		BitcoinAmount:        amounts.BitcoinAmount,
		PercentageDifference: pct,
		BetterMethod:         BetterMethod(bitcoinRate, traditionalRate),
		ArbitrageOpportunity: DetectArbitrage(pct, o.threshold),
	}, nil
}

// BatchCompareRates compares one unit of each pair. The first failing pair
// aborts the batch and no partial results are returned.
func BatchCompareRates(
	pairs []domain.Pair,
	prices domain.BitcoinPrices,
	rates domain.ForexRates,
	opts ...Option,
) ([]domain.Comparison, error) {
	results := make([]domain.Comparison, 0, len(pairs))
	for i, p := range pairs {
		c, err := CompareRates(p.Source, p.Target, 1, prices, rates, opts...)
		if err != nil {
			return nil, fmt.Errorf("pair %d (%s/%s): %w", i, p.Source, p.Target, err)
		}
		results = append(results, *c)
	}
	return results, nil
}
