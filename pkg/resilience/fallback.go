package resilience

import (
	"context"
	"log/slog"
)

// FallbackOptions configures WithFallback.
type FallbackOptions[T any] struct {
	// FallbackData is served as-is whenever it is set.
	FallbackData *T
	// Load is consulted when FallbackData is nil and GracefulDegradation is
	// on. It reports false when it has nothing usable.
	Load func(ctx context.Context) (T, bool)
	// GracefulDegradation enables the Load path.
	GracefulDegradation bool
	// OnFallback is called with the original failure when fallback data is
	// served.
	OnFallback func(err error)
	Logger     *slog.Logger
}

// WithFallback runs op and, on failure, serves fallback data when any is
// available. Without fallback data the failure is returned as a
// *domain.Error signalling total failure.
func WithFallback[T any](ctx context.Context, op func(context.Context) (T, error), opts FallbackOptions[T]) (T, error) {
	v, err := op(ctx)
	if err == nil {
		return v, nil
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if data, ok := fallbackData(ctx, opts); ok {
		logger.Warn("Serving fallback data", "error", err)
		if opts.OnFallback != nil {
			opts.OnFallback(err)
		}
		return data, nil
	}

	var zero T
	return zero, Enhance(err, "all data sources failed and no fallback data is available", nil)
}

func fallbackData[T any](ctx context.Context, opts FallbackOptions[T]) (T, bool) {
	if opts.FallbackData != nil {
		return *opts.FallbackData, true
	}
	if opts.GracefulDegradation && opts.Load != nil {
		return opts.Load(ctx)
	}
	var zero T
	return zero, false
}
