package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
	err    error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return s.err
}

func testRetryConfig(s *sleepRecorder) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.Sleep = s.sleep
	cfg.Rand = func() float64 { return 0.5 } // no jitter
	return cfg
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	s := &sleepRecorder{}
	calls := 0
	got, err := Retry(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", domain.Errorf(domain.KindNetwork, "connection reset")
		}
		return "ok", nil
	}, testRetryConfig(s))

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestRetry_ExhaustedWrapsLastError(t *testing.T) {
	s := &sleepRecorder{}
	calls := 0
	_, err := Retry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, domain.Errorf(domain.KindServer, "upstream 503")
	}, testRetryConfig(s))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, s.delays, 2)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.KindServer, derr.Kind)
	assert.True(t, derr.Recoverable)
	assert.Equal(t, 3, derr.Context["attempts"])
	assert.Contains(t, err.Error(), "upstream 503")
	assert.ErrorIs(t, err, domain.ErrServer)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid data", domain.Errorf(domain.KindInvalidData, "bad json")},
		{"rate limited", domain.Errorf(domain.KindRateLimited, "429")},
		{"circuit open", domain.ErrCircuitOpen},
		{"unknown", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &sleepRecorder{}
			calls := 0
			_, err := Retry(context.Background(), func(context.Context) (int, error) {
				calls++
				return 0, tt.err
			}, testRetryConfig(s))
			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, s.delays)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRetry_CustomCondition(t *testing.T) {
	s := &sleepRecorder{}
	cfg := testRetryConfig(s)
	cfg.MaxAttempts = 4
	cfg.RetryCondition = func(error) bool { return true }
	calls := 0
	_, err := Retry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("always")
	}, cfg)
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_SleepAbortStopsLoop(t *testing.T) {
	s := &sleepRecorder{err: context.Canceled}
	calls := 0
	_, err := Retry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, domain.Errorf(domain.KindTimeout, "slow")
	}, testRetryConfig(s))

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "retry aborted")
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
}

func TestRetry_ContextCancelledWithRealSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour
	calls := 0
	_, err := Retry(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, domain.Errorf(domain.KindNetwork, "down")
	}, cfg)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_OnRetryCallback(t *testing.T) {
	s := &sleepRecorder{}
	cfg := testRetryConfig(s)
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	_, _ = Retry(context.Background(), func(context.Context) (int, error) {
		return 0, domain.ErrNetwork
	}, cfg)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()

	cfg.Rand = func() float64 { return 0.5 }
	assert.Equal(t, time.Second, Backoff(1, cfg))
	assert.Equal(t, 2*time.Second, Backoff(2, cfg))
	assert.Equal(t, 4*time.Second, Backoff(3, cfg))
	assert.Equal(t, 8*time.Second, Backoff(4, cfg))
	assert.Equal(t, 10*time.Second, Backoff(5, cfg), "capped at MaxDelay")

	cfg.Rand = func() float64 { return 0 }
	assert.Equal(t, 900*time.Millisecond, Backoff(1, cfg))

	cfg.Rand = func() float64 { return 0.999999 }
	d := Backoff(1, cfg)
	assert.Greater(t, d, time.Second)
	assert.LessOrEqual(t, d, 1100*time.Millisecond)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
