package exchange

import (
	"errors"
	"math"
	"testing"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitcoinImpliedRate(t *testing.T) {
	prices := domain.BitcoinPrices{"usd": 45000, "eur": 38000, "bad": 0}

	tests := []struct {
		name     string
		source   string
		target   string
		want     float64
		wantKind domain.Kind
	}{
		{name: "usd to eur", source: "usd", target: "eur", want: 45000.0 / 38000.0},
		{name: "upper case codes", source: "USD", target: "EUR", want: 45000.0 / 38000.0},
		{name: "missing target", source: "usd", target: "gbp", wantKind: domain.KindPriceUnavailable},
		{name: "missing source", source: "jpy", target: "usd", wantKind: domain.KindPriceUnavailable},
		{name: "zero price", source: "usd", target: "bad", wantKind: domain.KindInvalidData},
		{name: "empty code", source: "", target: "usd", wantKind: domain.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BitcoinImpliedRate(tt.source, tt.target, prices)
			if tt.wantKind != domain.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestBitcoinImpliedRate_MissingPriceNamesCurrency(t *testing.T) {
	_, err := BitcoinImpliedRate("usd", "gbp", domain.BitcoinPrices{"usd": 45000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPriceUnavailable))

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "GBP", derr.Context["currency"])
	assert.Contains(t, err.Error(), "GBP")
}

func TestBitcoinImpliedRate_InverseIdentity(t *testing.T) {
	cases := [][2]float64{
		{45000, 38000},
		{1, 1},
		{0.0001, 9_000_000},
		{123456.789, 0.5},
	}
	for _, c := range cases {
		prices := domain.BitcoinPrices{"aaa": c[0], "bbb": c[1]}
		ab, err := BitcoinImpliedRate("aaa", "bbb", prices)
		require.NoError(t, err)
		ba, err := BitcoinImpliedRate("bbb", "aaa", prices)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, ab*ba, 1e-9)
	}
}

func TestTraditionalRate(t *testing.T) {
	rates := domain.ForexRates{
		Base:  "USD",
		Date:  "2024-01-01",
		Rates: map[string]float64{"USD": 1, "EUR": 0.85, "GBP": 0.75, "ZERO": 0},
	}

	tests := []struct {
		name     string
		source   string
		target   string
		want     float64
		wantKind domain.Kind
	}{
		{name: "source is base", source: "USD", target: "EUR", want: 0.85},
		{name: "target is base", source: "EUR", target: "USD", want: 1 / 0.85},
		{name: "cross rate", source: "EUR", target: "GBP", want: 0.75 / 0.85},
		{name: "lower case codes", source: "eur", target: "gbp", want: 0.75 / 0.85},
		{name: "same currency", source: "JPY", target: "JPY", want: 1},
		{name: "missing target", source: "USD", target: "JPY", wantKind: domain.KindRateUnavailable},
		{name: "missing source in cross", source: "JPY", target: "EUR", wantKind: domain.KindRateUnavailable},
		{name: "non-positive rate", source: "USD", target: "ZERO", wantKind: domain.KindInvalidData},
		{name: "empty code", source: "USD", target: " ", wantKind: domain.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TraditionalRate(tt.source, tt.target, rates)
			if tt.wantKind != domain.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPercentageDifference(t *testing.T) {
	for _, r := range []float64{0.0001, 0.85, 1, 1234.5} {
		pct, err := PercentageDifference(r, r)
		require.NoError(t, err)
		assert.Zero(t, pct)
	}

	pct, err := PercentageDifference(1.1, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pct, 1e-9)

	pct, err = PercentageDifference(0.9, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, -10.0, pct, 1e-9)

	for _, bad := range []float64{0, -1, math.NaN()} {
		_, err := PercentageDifference(1, bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	}
}

func TestDetectArbitrage(t *testing.T) {
	tests := []struct {
		pct       float64
		threshold float64
		want      bool
	}{
		{2.0, DefaultArbitrageThreshold, false},
		{2.0001, DefaultArbitrageThreshold, true},
		{-2.0001, DefaultArbitrageThreshold, true},
		{-2.0, DefaultArbitrageThreshold, false},
		{0, DefaultArbitrageThreshold, false},
		{0.6, 0.5, true},
		{0.5, 0.5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectArbitrage(tt.pct, tt.threshold), "pct=%v threshold=%v", tt.pct, tt.threshold)
	}
}

func TestBetterMethod(t *testing.T) {
	assert.Equal(t, domain.MethodEqual, BetterMethod(1.00005, 1.0))
	assert.Equal(t, domain.MethodBitcoin, BetterMethod(1.0002, 1.0))
	assert.Equal(t, domain.MethodTraditional, BetterMethod(0.9998, 1.0))
	assert.Equal(t, domain.MethodEqual, BetterMethod(1.0, 1.0))
}

func TestConvertedAmounts(t *testing.T) {
	for _, amount := range []float64{0, 1, 1000, 0.01, 123456.78} {
		for _, r := range []float64{0.0001, 0.85, 1, 110.5} {
			got, err := ConvertedAmounts(amount, r, r)
			require.NoError(t, err)
			assert.Equal(t, got.BitcoinAmount, got.TraditionalAmount)
			assert.Equal(t, amount*r, got.BitcoinAmount)
		}
	}

	got, err := ConvertedAmounts(1000, 1.2, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 1000*1.2, got.BitcoinAmount)
	assert.Equal(t, 1000*0.85, got.TraditionalAmount)

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := ConvertedAmounts(bad, 1, 1)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	}
}
