package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every error the core can produce. The set is closed:
// handling sites switch over it exhaustively.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput is a caller bug: bad amount, empty code, bad threshold.
	KindInvalidInput
	// KindInvalidData is malformed upstream data, e.g. a non-positive price.
	KindInvalidData
	// KindRateUnavailable means the forex table has no rate for a currency.
	KindRateUnavailable
	// KindPriceUnavailable means the Bitcoin snapshot has no price for a currency.
	KindPriceUnavailable
	KindNetwork
	KindTimeout
	// KindRateLimited requires a cool-down before the next attempt.
	KindRateLimited
	KindServer
	// KindCircuitOpen is returned without calling the upstream feed.
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidData:
		return "invalid_data"
	case KindRateUnavailable:
		return "rate_unavailable"
	case KindPriceUnavailable:
		return "price_unavailable"
	case KindNetwork:
		return "network_error"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Recoverable reports whether the failure can go away without a code change.
func (k Kind) Recoverable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer, KindCircuitOpen:
		return true
	case KindInvalidInput, KindInvalidData, KindRateUnavailable, KindPriceUnavailable, KindUnknown:
		return false
	}
	return false
}

// Retryable reports whether an immediate retry makes sense. Rate limiting and
// an open circuit are recoverable but need a cool-down first.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServer:
		return true
	case KindRateLimited, KindCircuitOpen, KindInvalidInput, KindInvalidData,
		KindRateUnavailable, KindPriceUnavailable, KindUnknown:
		return false
	}
	return false
}

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidData      = &Error{Kind: KindInvalidData, Message: "invalid data"}
	ErrRateUnavailable  = &Error{Kind: KindRateUnavailable, Message: "exchange rate unavailable"}
	ErrPriceUnavailable = &Error{Kind: KindPriceUnavailable, Message: "bitcoin price unavailable"}
	ErrNetwork          = &Error{Kind: KindNetwork, Message: "network error", Recoverable: true}
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "request timed out", Recoverable: true}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Message: "rate limited", Recoverable: true}
	ErrServer           = &Error{Kind: KindServer, Message: "server error", Recoverable: true}
	ErrCircuitOpen      = &Error{Kind: KindCircuitOpen, Message: "circuit breaker is OPEN", Recoverable: true}
)

// Error is the structured error surfaced by the core. It carries the kind,
// a developer message, the context it happened in, the original cause and a
// text suitable for showing to a user.
type Error struct {
	Kind        Kind
	Message     string
	Context     map[string]any
	Cause       error
	Recoverable bool
	UserMessage string
}

// NewError builds an *Error whose recoverable flag follows the kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		Message:     message,
		Cause:       cause,
		Recoverable: kind.Recoverable(),
	}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...), nil)
}

// With returns the error with key=value added to its context.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches kind sentinels, so errors.Is(err, ErrRateLimited) holds for any
// rate-limited *Error in the chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
