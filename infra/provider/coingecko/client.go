// Package coingecko fetches Bitcoin spot prices from the CoinGecko simple
// price endpoint.
package coingecko

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirasaad/btcfx/infra/provider"
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public CoinGecko API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const name = "coingecko"

// Client queries /simple/price for bitcoin.
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

// FetchPrices returns the bitcoin price in each of codes. The response must
// contain a positive price for every code.
func (c *Client) FetchPrices(ctx context.Context, codes []string) (domain.BitcoinPrices, error) {
	codes = domain.NormalizeCodes(codes)
	if len(codes) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "no currencies requested")
	}

	q := url.Values{}
	q.Set("ids", "bitcoin")
	q.Set("vs_currencies", strings.Join(codes, ","))
	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	body, err := provider.Get(ctx, c.httpClient, endpoint, c.logger)
	if err != nil {
		return nil, err
	}
	return parsePrices(body, codes)
}

func parsePrices(body []byte, codes []string) (domain.BitcoinPrices, error) {
	if !gjson.ValidBytes(body) {
		return nil, provider.InvalidData(name, "response is not valid JSON")
	}
	btc := gjson.GetBytes(body, "bitcoin")
	if !btc.IsObject() {
		return nil, provider.InvalidData(name, "response has no bitcoin object")
	}

	prices := make(domain.BitcoinPrices, len(codes))
	for _, code := range codes {
		v := btc.Get(code)
		if !v.Exists() {
			return nil, provider.InvalidData(name, "no price for %s", strings.ToUpper(code)).
				With("currency", code)
		}
		if v.Type != gjson.Number {
			return nil, provider.InvalidData(name, "price for %s is not a number", strings.ToUpper(code)).
				With("currency", code)
		}
		prices[code] = v.Float()
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	return prices, nil
}
