// Package provider holds the HTTP plumbing shared by the upstream price feed
// clients.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/resilience"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// DefaultTimeout is the per-request timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// NewHTTPClient returns a client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Get issues a GET to url and returns the body of a 2xx response. Failures
// are classified into domain kinds: 429 is rate limited, 5xx is a server
// error, any other non-2xx is a rejected request, and transport failures are
// network errors or timeouts.
func Get(ctx context.Context, client *http.Client, url string, logger *slog.Logger) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "failed to create request", err).
			With("url", url)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportError(err, url)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, TransportError(err, url)
	}
	if logger != nil {
		logger.Debug("Upstream response",
			"url", url,
			"status", resp.StatusCode,
			"bytes", len(body),
			"duration", time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(resp, body, url)
	}
	return body, nil
}

// StatusError classifies a non-2xx response.
func StatusError(resp *http.Response, body []byte, url string) *domain.Error {
	status := resp.StatusCode
	var e *domain.Error
	switch {
	case status == http.StatusTooManyRequests:
		e = domain.Errorf(domain.KindRateLimited, "HTTP %d: rate limited", status)
		if ra := retryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			e.With("retry_after", ra)
		}
	case status >= 500:
		e = domain.Errorf(domain.KindServer, "HTTP %d: %s", status, http.StatusText(status))
	default:
		e = domain.Errorf(domain.KindInvalidInput, "HTTP %d: %s", status, http.StatusText(status))
	}
	e.With("status", status).With("url", url)
	if len(body) > 0 {
		e.With("body", truncate(string(body), 200))
	}
	return e
}

// TransportError classifies a failure to complete the request.
func TransportError(err error, url string) *domain.Error {
	kind := domain.KindNetwork
	if resilience.Classify(err) == domain.KindTimeout || errors.Is(err, context.DeadlineExceeded) {
		kind = domain.KindTimeout
	}
	msg := "network request failed"
	if kind == domain.KindTimeout {
		msg = "request timed out"
	}
	return domain.NewError(kind, msg, err).With("url", url)
}

// InvalidData reports a response body that could not be used.
func InvalidData(source, format string, args ...any) *domain.Error {
	return domain.Errorf(domain.KindInvalidData, "%s: %s", source, fmt.Sprintf(format, args...)).
		With("source", source)
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
