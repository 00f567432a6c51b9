package resilience

import (
	"sync"
	"time"

	"github.com/amirasaad/btcfx/pkg/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON output.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before one trial
	// call is let through.
	RecoveryTimeout time.Duration
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(name string, from, to CircuitState)
	Now           func() time.Time
}

// DefaultBreakerConfig opens after 3 failures for 30 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// BreakerStats is a point-in-time view of a breaker.
type BreakerStats struct {
	Name        string       `json:"name"`
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure time.Time    `json:"last_failure"`
	OpenedAt    time.Time    `json:"opened_at"`
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg   BreakerConfig
	state CircuitState

	failures      int
	lastFailure   time.Time
	openedAt      time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

type transition struct {
	from, to CircuitState
}

// Execute runs fn unless the circuit is open. Open rejections do not call fn.
// A panic in fn counts as a failure and is propagated.
func (cb *CircuitBreaker) Execute(fn func() error) (err error) {
	if err := cb.allow(); err != nil {
		return err
	}
	completed := false
	defer func() {
		if !completed {
			cb.recordFailure()
		}
	}()
	err = fn()
	completed = true
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	return err
}

// Guard is Execute for functions that return a value.
func Guard[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	var tr *transition
	var rejected error

	switch cb.state {
	case CircuitClosed:
	case CircuitOpen:
		now := cb.cfg.Now()
		reopenAt := cb.openedAt.Add(cb.cfg.RecoveryTimeout)
		if now.Before(reopenAt) {
			rejected = cb.openError(reopenAt.Sub(now))
			break
		}
		tr = cb.transitionTo(CircuitHalfOpen)
		cb.trialInFlight = true
	case CircuitHalfOpen:
		if cb.trialInFlight {
			rejected = cb.openError(0)
			break
		}
		cb.trialInFlight = true
	}
	cb.mu.Unlock()

	cb.notify(tr)
	return rejected
}

func (cb *CircuitBreaker) openError(retryAfter time.Duration) error {
	return domain.NewError(domain.KindCircuitOpen, "circuit breaker is OPEN", nil).
		With("breaker", cb.cfg.Name).
		With("retry_after", retryAfter)
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	var tr *transition
	if cb.state == CircuitHalfOpen {
		tr = cb.transitionTo(CircuitClosed)
	}
	cb.failures = 0
	cb.trialInFlight = false
	cb.mu.Unlock()

	cb.notify(tr)
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	var tr *transition
	cb.failures++
	cb.lastFailure = cb.cfg.Now()

	switch cb.state {
	case CircuitHalfOpen:
		tr = cb.transitionTo(CircuitOpen)
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			tr = cb.transitionTo(CircuitOpen)
		}
	case CircuitOpen:
	}
	cb.trialInFlight = false
	cb.mu.Unlock()

	cb.notify(tr)
}

// transitionTo must be called with mu held.
func (cb *CircuitBreaker) transitionTo(to CircuitState) *transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	switch to {
	case CircuitOpen:
		cb.openedAt = cb.cfg.Now()
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(tr *transition) {
	if tr == nil || cb.cfg.OnStateChange == nil {
		return
	}
	cb.cfg.OnStateChange(cb.cfg.Name, tr.from, tr.to)
}

// Reset forces the breaker closed with no recorded failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	tr := cb.transitionTo(CircuitClosed)
	cb.failures = 0
	cb.trialInFlight = false
	cb.openedAt = time.Time{}
	cb.mu.Unlock()

	cb.notify(tr)
}

// State returns the current state. An open breaker whose recovery timeout
// has elapsed still reports OPEN until the next call moves it to HALF_OPEN.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Name:        cb.cfg.Name,
		State:       cb.state,
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
		OpenedAt:    cb.openedAt,
	}
}
