package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFeeds(t *testing.T) {
	t.Helper()
	coingecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000,"eur":54000,"gbp":48000}}`))
	}))
	t.Cleanup(coingecko.Close)

	erAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := strings.TrimPrefix(r.URL.Path, "/latest/")
		w.Header().Set("Content-Type", "application/json")
		switch base {
		case "USD":
			_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","time_last_update_utc":"Fri, 01 Mar 2024 00:00:01 +0000","rates":{"USD":1,"EUR":0.92,"GBP":0.79}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(erAPI.Close)

	t.Setenv("APP_ENV", "test")
	t.Setenv("BITCOIN_FEED_API_URL", coingecko.URL)
	t.Setenv("BITCOIN_FEED_MIN_INTERVAL", "0s")
	t.Setenv("FOREX_FEED_PRIMARY_URL", erAPI.URL)
	t.Setenv("FOREX_FEED_SECONDARY_URL", "")
	t.Setenv("FALLBACK_BACKEND", "memory")
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out, "does-not-exist.env")
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_Compare(t *testing.T) {
	setupFeeds(t)
	var out bytes.Buffer

	err := run(context.Background(), []string{"compare", "usd", "eur", "100"}, &out, "does-not-exist.env")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "USD -> EUR (amount 100)")
	assert.Contains(t, out.String(), "traditional: rate 0.92, receive 92")
	assert.Contains(t, out.String(), "arbitrage opportunity")
}

func TestRun_CompareErrors(t *testing.T) {
	setupFeeds(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing target", []string{"compare", "USD"}},
		{"bad amount", []string{"compare", "USD", "EUR", "lots"}},
		{"bad pair", []string{"batch", "USDEUR"}},
		{"bad interval", []string{"watch", "USD", "EUR", "1", "never"}},
		{"unknown command", []string{"convert"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(context.Background(), tt.args, &out, "does-not-exist.env"))
		})
	}
}

func TestRun_Batch(t *testing.T) {
	setupFeeds(t)
	var out bytes.Buffer

	err := run(context.Background(), []string{"batch", "USD/EUR", "EUR/GBP"}, &out, "does-not-exist.env")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "USD -> EUR")
	assert.Contains(t, out.String(), "EUR -> GBP")
}

func TestRun_Health(t *testing.T) {
	setupFeeds(t)
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"health"}, &out, "does-not-exist.env"))
	var health map[string]map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &health))
	assert.Contains(t, health, "bitcoin")
	assert.Contains(t, health, "forex")
	assert.Equal(t, "CLOSED", health["bitcoin"]["circuit"].(map[string]any)["state"])
}

func TestRun_WatchStopsOnCancel(t *testing.T) {
	setupFeeds(t)
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := run(ctx, []string{"watch", "USD", "GBP", "10", "1h"}, &out, "does-not-exist.env")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "USD -> GBP (amount 10)")
}

func TestRound(t *testing.T) {
	assert.Equal(t, "1.111111", round(60000.0/54000.0, 6))
	assert.Equal(t, "20.77", round(20.7729, 2))
	assert.Equal(t, "0", round(0, 2))
}
