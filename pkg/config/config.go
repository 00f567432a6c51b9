package config

import (
	"time"
)

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"text" validate:"oneof=json text"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[btcfx]"`
}

// Retry is the retry policy of one upstream source.
type Retry struct {
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	BaseDelay   time.Duration `envconfig:"BASE_DELAY" default:"1s" validate:"gte=0"`
	MaxDelay    time.Duration `envconfig:"MAX_DELAY" default:"10s" validate:"gtefield=BaseDelay"`
}

// FailoverRetry is Retry with the shorter default of a failover source.
type FailoverRetry struct {
	MaxAttempts int           `envconfig:"MAX_ATTEMPTS" default:"2" validate:"min=1,max=10"`
	BaseDelay   time.Duration `envconfig:"BASE_DELAY" default:"1s" validate:"gte=0"`
	MaxDelay    time.Duration `envconfig:"MAX_DELAY" default:"10s" validate:"gtefield=BaseDelay"`
}

func (r FailoverRetry) Retry() Retry {
	return Retry(r)
}

type BitcoinFeed struct {
	ApiUrl            string        `envconfig:"API_URL" default:"https://api.coingecko.com/api/v3" validate:"required,url"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"30s" validate:"gt=0"`
	MinInterval       time.Duration `envconfig:"MIN_INTERVAL" default:"1200ms" validate:"gte=0"`
	RateLimitCooldown time.Duration `envconfig:"RATE_LIMIT_COOLDOWN" default:"60s" validate:"gt=0"`
	Retry             Retry         `envconfig:"RETRY"`
}

type ForexFeed struct {
	PrimaryUrl     string        `envconfig:"PRIMARY_URL" default:"https://open.er-api.com/v6" validate:"required,url"`
	SecondaryUrl   string        `envconfig:"SECONDARY_URL" default:"https://api.exchangerate-api.com" validate:"omitempty,url"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s" validate:"gt=0"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5m" validate:"gt=0"`
	PrimaryRetry   Retry         `envconfig:"PRIMARY_RETRY"`
	SecondaryRetry FailoverRetry `envconfig:"SECONDARY_RETRY"`
}

type CircuitBreaker struct {
	FailureThreshold int           `envconfig:"FAILURE_THRESHOLD" default:"3" validate:"min=1"`
	RecoveryTimeout  time.Duration `envconfig:"RECOVERY_TIMEOUT" default:"30s" validate:"gt=0"`
}

// Fallback selects where the last good responses are persisted.
type Fallback struct {
	Enabled   bool          `envconfig:"ENABLED" default:"true"`
	Backend   string        `envconfig:"BACKEND" default:"memory" validate:"oneof=memory redis sqlite postgres"`
	MaxAge    time.Duration `envconfig:"MAX_AGE" default:"24h" validate:"gt=0"`
	KeyPrefix string        `envconfig:"KEY_PREFIX" default:"btcfx:"`
}

type Redis struct {
	URL string `envconfig:"URL" default:"redis://localhost:6379/0"`
}

type DB struct {
	Url string `envconfig:"URL"`
}

// EventBus selects where application events go. "redis" additionally
// appends every event to a Redis stream.
type EventBus struct {
	Driver       string `envconfig:"DRIVER" default:"memory" validate:"oneof=memory redis"`
	StreamPrefix string `envconfig:"STREAM_PREFIX" default:"btcfx:events"`
	MaxLen       int64  `envconfig:"MAX_LEN" default:"1000" validate:"gte=0"`
}

type Comparison struct {
	ArbitrageThreshold float64 `envconfig:"ARBITRAGE_THRESHOLD" default:"2" validate:"gte=0"`
}

type Debounce struct {
	Wait    time.Duration `envconfig:"WAIT" default:"300ms" validate:"gte=0"`
	MaxWait time.Duration `envconfig:"MAX_WAIT" default:"1s" validate:"gtefield=Wait"`
}

type Reporter struct {
	MaxBreadcrumbs int `envconfig:"MAX_BREADCRUMBS" default:"10" validate:"min=1"`
}

type App struct {
	Env        string         `envconfig:"APP_ENV" default:"development" validate:"oneof=development test production"`
	Log        Log            `envconfig:"LOG"`
	Bitcoin    BitcoinFeed    `envconfig:"BITCOIN_FEED"`
	Forex      ForexFeed      `envconfig:"FOREX_FEED"`
	Breaker    CircuitBreaker `envconfig:"CIRCUIT_BREAKER"`
	Fallback   Fallback       `envconfig:"FALLBACK"`
	Redis      Redis          `envconfig:"REDIS"`
	DB         DB             `envconfig:"DATABASE"`
	EventBus   EventBus       `envconfig:"EVENTBUS"`
	Comparison Comparison     `envconfig:"COMPARISON"`
	Debounce   Debounce       `envconfig:"DEBOUNCE"`
	Reporter   Reporter       `envconfig:"REPORTER"`
}
