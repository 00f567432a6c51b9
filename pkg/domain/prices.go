package domain

import (
	"sort"
	"strings"
)

// BitcoinPrices maps a lowercase currency code to the Bitcoin spot price in
// that currency.
type BitcoinPrices map[string]float64

// Price returns the price for code, matched case-insensitively.
func (p BitcoinPrices) Price(code string) (float64, bool) {
	v, ok := p[strings.ToLower(code)]
	return v, ok
}

// Has reports whether every code has a price.
func (p BitcoinPrices) Has(codes ...string) bool {
	for _, c := range codes {
		if _, ok := p.Price(c); !ok {
			return false
		}
	}
	return true
}

// Subset returns the prices for codes only. Missing codes are skipped.
func (p BitcoinPrices) Subset(codes []string) BitcoinPrices {
	out := make(BitcoinPrices, len(codes))
	for _, c := range codes {
		if v, ok := p.Price(c); ok {
			out[strings.ToLower(c)] = v
		}
	}
	return out
}

// Validate checks that every price is positive.
func (p BitcoinPrices) Validate() error {
	for code, v := range p {
		if !(v > 0) {
			return Errorf(KindInvalidData, "bitcoin price for %s must be positive, got %v", code, v).
				With("currency", code)
		}
	}
	return nil
}

// ForexRates is a rate table quoted against Base.
type ForexRates struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the rate for code, matched case-insensitively.
func (r ForexRates) Rate(code string) (float64, bool) {
	v, ok := r.Rates[strings.ToUpper(code)]
	return v, ok
}

// Validate checks that all rates are positive and that the base, when
// quoted, is 1.
func (r ForexRates) Validate() error {
	if strings.TrimSpace(r.Base) == "" {
		return Errorf(KindInvalidData, "forex rates have no base currency")
	}
	for code, v := range r.Rates {
		if !(v > 0) {
			return Errorf(KindInvalidData, "forex rate for %s must be positive, got %v", code, v).
				With("currency", code)
		}
	}
	if v, ok := r.Rate(r.Base); ok && v != 1 {
		return Errorf(KindInvalidData, "forex rate for base %s must be 1, got %v", r.Base, v).
			With("currency", r.Base)
	}
	return nil
}

// NormalizeCodes lower-cases, de-duplicates and sorts codes. Empty entries
// are dropped.
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
