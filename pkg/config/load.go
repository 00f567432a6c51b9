// Package config loads application settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	logger.Info("Loading environment variables")

	// If no specific paths provided, try default .env
	if len(envFilePath) == 0 {
		logger.Debug("No environment file specified, trying default .env")
		if err := godotenv.Load(); err != nil {
			logger.Warn("No .env file found in current directory")
		}
		return loadFromEnv()
	}

	for _, path := range envFilePath {
		logger.Debug("Looking for environment file", "path", path)
		foundPath, err := FindEnvFile(path)
		if err != nil {
			logger.Debug("Environment file not found", "path", path, "error", err)
			continue
		}

		logger.Info("Loading environment from file", "path", foundPath)
		if err := godotenv.Load(foundPath); err != nil {
			logger.Error("Failed to load environment file", "path", foundPath, "error", err)
			continue
		}
		return loadFromEnv()
	}

	logger.Info("No valid environment files found, using process environment")
	return loadFromEnv()
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"bitcoin_api_url", cfg.Bitcoin.ApiUrl,
		"bitcoin_cache_ttl", cfg.Bitcoin.CacheTTL,
		"forex_primary_url", cfg.Forex.PrimaryUrl,
		"forex_secondary_url", cfg.Forex.SecondaryUrl,
		"forex_cache_ttl", cfg.Forex.CacheTTL,
		"fallback_backend", cfg.Fallback.Backend,
		"redis", maskValue(cfg.Redis.URL),
		"db", maskValue(cfg.DB.Url),
		"arbitrage_threshold", cfg.Comparison.ArbitrageThreshold,
	)
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrDatabaseURL is returned when an SQL fallback backend has no URL.
var ErrDatabaseURL = errors.New("DATABASE_URL is required for the postgres fallback backend")

// Validate checks field constraints and cross-field rules.
func (c *App) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Fallback.Backend == "postgres" && c.DB.Url == "" {
		return ErrDatabaseURL
	}
	return nil
}

// DatabaseURL returns the connection string for the SQL fallback backend.
// sqlite defaults to a local file.
func (c *App) DatabaseURL() string {
	if c.DB.Url == "" && c.Fallback.Backend == "sqlite" {
		return "btcfx.db"
	}
	return c.DB.Url
}
