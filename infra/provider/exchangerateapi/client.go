// Package exchangerateapi is the primary forex source. It speaks the
// ExchangeRate-API "latest" format used by open.er-api.com.
package exchangerateapi

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

// DefaultBaseURL is the free ExchangeRate-API endpoint.
const DefaultBaseURL = "https://open.er-api.com/v6"

const name = "exchangerate-api"

// latestResponse is the body of GET {base}/latest/{BASE}.
// Example: {"result":"success","base_code":"USD","time_last_update_utc":"...","rates":{...}}
type latestResponse struct {
	Result            string             `json:"result"`
	BaseCode          string             `json:"base_code"`
	TimeLastUpdateUTC string             `json:"time_last_update_utc"`
	ConversionRates   map[string]float64 `json:"conversion_rates"`
	Rates             map[string]float64 `json:"rates"`
	ErrorType         string             `json:"error-type,omitempty"`
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

// FetchRates returns every rate quoted against base.
func (c *Client) FetchRates(ctx context.Context, base string) (domain.ForexRates, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return domain.ForexRates{}, domain.Errorf(domain.KindInvalidInput, "base currency is required")
	}

	body, err := provider.Get(ctx, c.httpClient, fmt.Sprintf("%s/latest/%s", c.baseURL, base), c.logger)
	if err != nil {
		return domain.ForexRates{}, err
	}

	var resp latestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ForexRates{}, provider.InvalidData(name, "failed to decode response: %v", err)
	}
	if resp.Result != "success" {
		e := provider.InvalidData(name, "API returned result=%q", resp.Result)
		if resp.ErrorType != "" {
			e.With("error_type", resp.ErrorType)
		}
		return domain.ForexRates{}, e
	}

	rates := resp.ConversionRates
	if len(rates) == 0 {
		rates = resp.Rates
	}
	if len(rates) == 0 {
		return domain.ForexRates{}, provider.InvalidData(name, "response has no rates")
	}
	if resp.BaseCode != "" {
		base = strings.ToUpper(resp.BaseCode)
	}

	out := domain.ForexRates{Base: base, Date: resp.TimeLastUpdateUTC, Rates: rates}
	if err := out.Validate(); err != nil {
		return domain.ForexRates{}, err
	}
	c.logger.Debug("Fetched exchange rates", "base", base, "count", len(rates))
	return out, nil
}
