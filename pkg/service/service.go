// Package service holds what the price feed adapters share. The adapters
// themselves live in sub-packages:
//
//	import "github.com/amirasaad/btcfx/pkg/service/bitcoin"
//	import "github.com/amirasaad/btcfx/pkg/service/forex"
package service

import (
	"encoding/json"
	"time"

	"github.com/amirasaad/btcfx/pkg/resilience"
)

// Origin tells where the data of the last successful call came from.
type Origin string

const (
	OriginNone     Origin = ""
	OriginLive     Origin = "live"
	OriginCache    Origin = "cache"
	OriginFallback Origin = "fallback"
)

// Health is a point-in-time view of a feed adapter.
type Health struct {
	Feed             string                  `json:"feed"`
	Circuit          resilience.BreakerStats `json:"circuit"`
	Cached           bool                    `json:"cached"`
	CacheAge         time.Duration           `json:"cache_age"`
	RateLimited      bool                    `json:"rate_limited"`
	RateLimitedUntil time.Time               `json:"rate_limited_until,omitzero"`
	LastOrigin       Origin                  `json:"last_origin"`
	LastSuccess      time.Time               `json:"last_success,omitzero"`
	LastError        string                  `json:"last_error,omitempty"`
	LastErrorAt      time.Time               `json:"last_error_at,omitzero"`
}

// MarshalJSON renders CacheAge as a duration string such as "12.5s".
func (h Health) MarshalJSON() ([]byte, error) {
	type health Health
	return json.Marshal(struct {
		health
		CacheAge string `json:"cache_age"`
	}{health: health(h), CacheAge: h.CacheAge.String()})
}

// Healthy reports whether the feed is usable without a fallback.
func (h Health) Healthy() bool {
	return h.Circuit.State == resilience.CircuitClosed && !h.RateLimited
}

// Status tracks the last outcome of an adapter. The zero value is ready to
// use; callers guard it with their own mutex.
type Status struct {
	LastOrigin  Origin
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
}

// Succeeded records a successful call.
func (s *Status) Succeeded(origin Origin, at time.Time) {
	s.LastOrigin = origin
	if origin == OriginLive {
		s.LastSuccess = at
	}
}

// Failed records a failed call.
func (s *Status) Failed(err error, at time.Time) {
	if err == nil {
		return
	}
	s.LastError = err.Error()
	s.LastErrorAt = at
}

// Fill copies the status into h.
func (s Status) Fill(h *Health) {
	h.LastOrigin = s.LastOrigin
	h.LastSuccess = s.LastSuccess
	h.LastError = s.LastError
	h.LastErrorAt = s.LastErrorAt
}
