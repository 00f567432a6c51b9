package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("upstream failed")

func failing() error { return errUpstream }
func succeeding() error { return nil }

func newTestBreaker(clock *fakeClock, changes *[]string) *CircuitBreaker {
	cfg := DefaultBreakerConfig("test")
	cfg.Now = clock.Now
	cfg.OnStateChange = func(name string, from, to CircuitState) {
		*changes = append(*changes, from.String()+"->"+to.String())
	}
	return NewCircuitBreaker(cfg)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errUpstream)
		assert.Equal(t, CircuitClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, 3, cb.Failures())
	assert.Equal(t, []string{"CLOSED->OPEN"}, changes)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called, "open breaker must not call the operation")
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Contains(t, err.Error(), "circuit breaker is OPEN")
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, cb.Execute(succeeding), domain.ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, changes)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(30 * time.Second)

	assert.ErrorIs(t, cb.Execute(failing), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->OPEN"}, changes)

	// the recovery timeout restarts from the reopen
	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, cb.Execute(succeeding), domain.ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(31 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeeding), domain.ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_PanickingTrialReleasesHalfOpen(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}
	clock.Advance(30 * time.Second)

	assert.PanicsWithValue(t, "decoder crashed", func() {
		_ = cb.Execute(func() error { panic("decoder crashed") })
	})
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->OPEN"}, changes)

	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Execute(succeeding), "a new trial is admitted after the recovery timeout")
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, 0, cb.Failures())

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}
	require.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
	assert.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->CLOSED"}, changes)
}

func TestGuard(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig("guard"))
	v, err := Guard(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Guard(cb, func() (int, error) { return 7, errUpstream })
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 0, v)
}

func TestCircuitBreaker_Stats(t *testing.T) {
	clock := newFakeClock()
	var changes []string
	cb := newTestBreaker(clock, &changes)
	_ = cb.Execute(failing)

	stats := cb.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, CircuitClosed, stats.State)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, clock.Now(), stats.LastFailure)

	text, err := CircuitHalfOpen.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "HALF_OPEN", string(text))
}
