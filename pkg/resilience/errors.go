package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/amirasaad/btcfx/pkg/domain"
)

// Classify maps any error to a domain kind. Structured errors keep their
// kind; raw transport errors are recognised as network or timeout failures.
func Classify(err error) domain.Kind {
	if err == nil {
		return domain.KindUnknown
	}
	if k := domain.KindOf(err); k != domain.KindUnknown {
		return k
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.KindTimeout
		}
		return domain.KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.KindNetwork
	}
	return domain.KindUnknown
}

// Enhance wraps err in a *domain.Error carrying message, context and a user
// message. The kind is taken from err.
func Enhance(err error, message string, context map[string]any) *domain.Error {
	kind := Classify(err)
	e := &domain.Error{
		Kind:        kind,
		Message:     message,
		Context:     context,
		Cause:       err,
		Recoverable: IsRecoverable(err),
	}
	e.UserMessage = UserMessage(e)
	return e
}

// UserMessage returns text suitable for an error banner.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var derr *domain.Error
	if errors.As(err, &derr) && derr.UserMessage != "" {
		return derr.UserMessage
	}
	switch Classify(err) {
	case domain.KindNetwork:
		return "Unable to connect. Please check your internet connection and try again."
	case domain.KindTimeout:
		return "The request took too long to complete. Please try again."
	case domain.KindRateLimited:
		return "Too many requests. Please wait a moment before trying again."
	case domain.KindServer:
		return "The price service is temporarily unavailable. Please try again later."
	case domain.KindCircuitOpen:
		return "The price service is temporarily paused after repeated failures. It will be retried shortly."
	case domain.KindInvalidInput:
		return "Please check your input and try again."
	case domain.KindInvalidData:
		return "Received invalid price data. Please try again later."
	case domain.KindRateUnavailable:
		return "An exchange rate for the selected currency is not available."
	case domain.KindPriceUnavailable:
		return "A Bitcoin price for the selected currency is not available."
	case domain.KindUnknown:
		return "An unexpected error occurred. Please try again."
	}
	return "An unexpected error occurred. Please try again."
}

// IsRecoverable reports whether retrying later can succeed.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Recoverable
	}
	return Classify(err).Recoverable()
}

// IsRetryable is the default retry condition: network, timeout and server
// failures are retried immediately, everything else is not.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}
