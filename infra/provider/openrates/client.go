// Package openrates is the secondary forex source, used after the primary
// one has exhausted its retries.
package openrates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/amirasaad/btcfx/infra/provider"
	"github.com/amirasaad/btcfx/pkg/domain"
)

// DefaultBaseURL serves {base}/v6/latest/{BASE}.
const DefaultBaseURL = "https://api.exchangerate-api.com"

const name = "openrates"

type latestResponse struct {
	Success *bool              `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
	Error   json.RawMessage    `json:"error,omitempty"`
}

// Client fetches rate tables.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: provider.NewHTTPClient(timeout),
		logger:     logger.With("provider", name),
	}
}

// Name returns the provider name.
func (c *Client) Name() string { return name }

// FetchRates returns every rate quoted against base. A body with
// "success": false is an error.
func (c *Client) FetchRates(ctx context.Context, base string) (domain.ForexRates, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return domain.ForexRates{}, domain.Errorf(domain.KindInvalidInput, "base currency is required")
	}

	body, err := provider.Get(ctx, c.httpClient, fmt.Sprintf("%s/v6/latest/%s", c.baseURL, base), c.logger)
	if err != nil {
		return domain.ForexRates{}, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ForexRates{}, provider.InvalidData(name, "failed to decode response: %v", err)
	}
	if resp.Success != nil && !*resp.Success {
		e := provider.InvalidData(name, "API returned success=false")
		if len(resp.Error) > 0 {
			e.With("error", string(resp.Error))
		}
		return domain.ForexRates{}, e
	}
	if len(resp.Rates) == 0 {
		return domain.ForexRates{}, provider.InvalidData(name, "response has no rates")
	}
	if resp.Base != "" {
		base = strings.ToUpper(resp.Base)
	}

	out := domain.ForexRates{Base: base, Date: resp.Date, Rates: resp.Rates}
	if err := out.Validate(); err != nil {
		return domain.ForexRates{}, err
	}
	c.logger.Debug("Fetched exchange rates", "base", base, "count", len(resp.Rates))
	return out, nil
}
