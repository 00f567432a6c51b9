// Package exchange derives the Bitcoin-implied and traditional conversion
// rates for a currency pair and compares them.
//
// Every function here is pure. Failures are *domain.Error values and are
// returned to the caller untouched.
package exchange

import (
	"math"
	"strings"

	"github.com/amirasaad/btcfx/pkg/domain"
)

const (
	// DefaultArbitrageThreshold is the percentage divergence above which a
	// pair is flagged.
	DefaultArbitrageThreshold = 2.0
	// EqualTolerance is the absolute rate difference under which both
	// methods are considered equal.
	EqualTolerance = 1e-4
)

// BitcoinImpliedRate returns prices[source] / prices[target].
func BitcoinImpliedRate(source, target string, prices domain.BitcoinPrices) (float64, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	target = strings.ToLower(strings.TrimSpace(target))
	if source == "" || target == "" {
		return 0, domain.Errorf(domain.KindInvalidInput, "currency codes are required")
	}

	sp, ok := prices[source]
	if !ok {
		return 0, missingPrice(source)
	}
	tp, ok := prices[target]
	if !ok {
		return 0, missingPrice(target)
	}
	if !(sp > 0) || !(tp > 0) {
		return 0, domain.Errorf(domain.KindInvalidData,
			"invalid bitcoin prices %s=%v %s=%v", source, sp, target, tp).
			With("source", source).
			With("target", target)
	}
	return sp / tp, nil
}

func missingPrice(code string) error {
	return domain.Errorf(domain.KindPriceUnavailable,
		"bitcoin price not available for %s", strings.ToUpper(code)).
		With("currency", strings.ToUpper(code))
}

// TraditionalRate returns the forex rate from source to target, crossing
// through the table's base currency when neither side is the base.
func TraditionalRate(source, target string, rates domain.ForexRates) (float64, error) {
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	if source == "" || target == "" {
		return 0, domain.Errorf(domain.KindInvalidInput, "currency codes are required")
	}
	if source == target {
		return 1, nil
	}
	base := strings.ToUpper(rates.Base)

	switch {
	case source == base:
		return lookupRate(rates, target)
	case target == base:
		r, err := lookupRate(rates, source)
		if err != nil {
			return 0, err
		}
		return 1 / r, nil
	default:
		sr, err := lookupRate(rates, source)
		if err != nil {
			return 0, err
		}
		tr, err := lookupRate(rates, target)
		if err != nil {
			return 0, err
		}
		return tr / sr, nil
	}
}

func lookupRate(rates domain.ForexRates, code string) (float64, error) {
	r, ok := rates.Rates[code]
	if !ok {
		return 0, domain.Errorf(domain.KindRateUnavailable,
			"exchange rate not available for %s", code).
			With("currency", code).
			With("base", rates.Base)
	}
	if !(r > 0) {
		return 0, domain.Errorf(domain.KindInvalidData,
			"invalid exchange rate %v for %s", r, code).
			With("currency", code)
	}
	return r, nil
}

// PercentageDifference returns how far the Bitcoin rate sits above (positive)
// or below (negative) the traditional rate, in percent.
func PercentageDifference(bitcoinRate, traditionalRate float64) (float64, error) {
	if !(traditionalRate > 0) {
		return 0, domain.Errorf(domain.KindInvalidInput,
			"traditional rate must be positive, got %v", traditionalRate)
	}
	return (bitcoinRate - traditionalRate) / traditionalRate * 100, nil
}

// DetectArbitrage reports whether |pct| is strictly above threshold.
func DetectArbitrage(percentageDifference, threshold float64) bool {
	return math.Abs(percentageDifference) > threshold
}

// BetterMethod picks the method that yields the larger rate.
func BetterMethod(bitcoinRate, traditionalRate float64) domain.Method {
	switch {
	case math.Abs(bitcoinRate-traditionalRate) < EqualTolerance:
		return domain.MethodEqual
	case bitcoinRate > traditionalRate:
		return domain.MethodBitcoin
	default:
		return domain.MethodTraditional
	}
}

// Amounts holds an amount converted by both methods.
type Amounts struct {
	BitcoinAmount     float64
	TraditionalAmount float64
}

// ConvertedAmounts multiplies amount by each rate.
func ConvertedAmounts(amount, bitcoinRate, traditionalRate float64) (Amounts, error) {
	if err := validateAmount(amount); err != nil {
		return Amounts{}, err
	}
	return Amounts{
		BitcoinAmount:     amount * bitcoinRate,
		TraditionalAmount: amount * traditionalRate,
	}, nil
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return domain.Errorf(domain.KindInvalidInput,
			"amount must be a non-negative number, got %v", amount).
			With("amount", amount)
	}
	return nil
}
