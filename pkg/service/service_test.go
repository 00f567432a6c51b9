package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/btcfx/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var s Status

	s.Succeeded(OriginLive, t0)
	s.Succeeded(OriginCache, t0.Add(time.Minute))
	s.Failed(nil, t0.Add(2*time.Minute))
	s.Failed(errors.New("HTTP 503"), t0.Add(3*time.Minute))

	var h Health
	s.Fill(&h)
	assert.Equal(t, OriginCache, h.LastOrigin)
	assert.Equal(t, t0, h.LastSuccess, "only live calls count as success")
	assert.Equal(t, "HTTP 503", h.LastError)
	assert.Equal(t, t0.Add(3*time.Minute), h.LastErrorAt)
}

func TestHealth_Healthy(t *testing.T) {
	h := Health{Circuit: resilience.BreakerStats{State: resilience.CircuitClosed}}
	assert.True(t, h.Healthy())

	h.RateLimited = true
	assert.False(t, h.Healthy())

	h = Health{Circuit: resilience.BreakerStats{State: resilience.CircuitHalfOpen}}
	assert.False(t, h.Healthy())
}

func TestHealth_JSONCacheAge(t *testing.T) {
	h := Health{
		Feed:       "bitcoin (coingecko)",
		Circuit:    resilience.BreakerStats{State: resilience.CircuitClosed},
		Cached:     true,
		CacheAge:   12500 * time.Millisecond,
		LastOrigin: OriginCache,
	}
	raw, err := json.Marshal(h)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "12.5s", out["cache_age"])
	assert.Equal(t, "bitcoin (coingecko)", out["feed"])
	assert.Equal(t, "cache", out["last_origin"])
	assert.NotContains(t, out, "CacheAge")
}
