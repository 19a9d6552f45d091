package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen rejects all requests without attempting them.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the action.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker for metrics/logging.
	Name string
	// FailureThreshold is the number of failures in CLOSED before opening.
	FailureThreshold int
	// SuccessThreshold is the number of successes in HALF_OPEN before closing.
	SuccessThreshold int
	// OpenDuration is how long to stay OPEN before probing.
	OpenDuration time.Duration
	// FailureWindow discards CLOSED-state failures older than this window.
	FailureWindow time.Duration
	// OnStateChange is called after every state transition.
	OnStateChange func(name string, from, to State)
	// Now supplies the clock. Defaults to time.Now; substitutable for tests.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenDuration:     60 * time.Second,
		FailureWindow:    2 * time.Minute,
	}
}

// BreakerMetrics is a point-in-time snapshot of breaker state.
type BreakerMetrics struct {
	State          State
	Failures       int
	Successes      int
	TotalRequests  int64
	LastFailureAt  time.Time
	LastSuccessAt  time.Time
	StateEnteredAt time.Time
}

// CircuitBreaker guards calls to a dependency with the classic
// CLOSED → OPEN → HALF_OPEN state machine. One instance per logical
// endpoint group; it runs for the lifetime of the client.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu             sync.Mutex
	state          State
	failures       int
	successes      int
	total          int64
	lastFailureAt  time.Time
	lastSuccessAt  time.Time
	stateEnteredAt time.Time

	probeStop chan struct{}
	probeWG   sync.WaitGroup
}

// NewCircuitBreaker creates a circuit breaker in the CLOSED state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenDuration <= 0 {
		config.OpenDuration = 60 * time.Second
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = 2 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		stateEnteredAt: config.Now(),
	}
}

// Execute runs fn through the breaker. While OPEN and inside the
// cool-down it returns ErrCircuitOpen without invoking fn. Errors from
// caller cancellation are not recorded as breaker failures.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.recordResult(err)
	return err
}

// State returns the current state, applying the OPEN→HALF_OPEN timeout
// transition if due.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// IsHealthy reports whether the breaker is CLOSED.
func (cb *CircuitBreaker) IsHealthy() bool {
	return cb.State() == StateClosed
}

// Metrics returns a snapshot of counters and timestamps.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerMetrics{
		State:          cb.currentState(),
		Failures:       cb.failures,
		Successes:      cb.successes,
		TotalRequests:  cb.total,
		LastFailureAt:  cb.lastFailureAt,
		LastSuccessAt:  cb.lastSuccessAt,
		StateEnteredAt: cb.stateEnteredAt,
	}
}

// Reset forces the breaker back to CLOSED.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed)
}

// StartProbe launches a background health probe that runs while the
// breaker is OPEN. A successful probe forces HALF_OPEN without touching
// the request counters. Stop with StopProbe.
func (cb *CircuitBreaker) StartProbe(interval time.Duration, probe func(ctx context.Context) error) {
	cb.mu.Lock()
	if cb.probeStop != nil {
		cb.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	cb.probeStop = stop
	cb.mu.Unlock()

	cb.probeWG.Add(1)
	go func() {
		defer cb.probeWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if cb.State() != StateOpen {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				err := probe(ctx)
				cancel()
				if err == nil {
					cb.forceHalfOpen()
				}
			}
		}
	}()
}

// StopProbe stops the background health probe. Safe to call multiple
// times or without a running probe.
func (cb *CircuitBreaker) StopProbe() {
	cb.mu.Lock()
	stop := cb.probeStop
	cb.probeStop = nil
	cb.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	cb.probeWG.Wait()
}

// allowRequest checks if a request should be allowed, applying the
// timeout transition.
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.total++

	switch cb.currentState() {
	case StateClosed, StateHalfOpen:
		return true
	default:
		return false
	}
}

// recordResult records the outcome of an attempted request.
func (cb *CircuitBreaker) recordResult(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		// Caller cancellation is not a service fault.
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// onSuccess handles a successful request. Must hold cb.mu.
func (cb *CircuitBreaker) onSuccess() {
	cb.lastSuccessAt = cb.config.Now()

	switch cb.currentState() {
	case StateClosed:
		// Discard failure history that has gone stale.
		if !cb.lastFailureAt.IsZero() && cb.config.Now().Sub(cb.lastFailureAt) > cb.config.FailureWindow {
			cb.failures = 0
		}
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.toState(StateClosed)
		}
	}
}

// onFailure handles a failed request. Must hold cb.mu.
func (cb *CircuitBreaker) onFailure() {
	now := cb.config.Now()

	switch cb.currentState() {
	case StateClosed:
		// Failures outside the window no longer count toward the threshold.
		if !cb.lastFailureAt.IsZero() && now.Sub(cb.lastFailureAt) > cb.config.FailureWindow {
			cb.failures = 0
		}
		cb.failures++
		cb.lastFailureAt = now
		if cb.failures >= cb.config.FailureThreshold {
			cb.toState(StateOpen)
		}
	case StateHalfOpen:
		cb.lastFailureAt = now
		cb.toState(StateOpen)
	default:
		cb.lastFailureAt = now
	}
}

// currentState returns the state, handling the OPEN→HALF_OPEN timeout
// transition. Must hold cb.mu.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.stateEnteredAt) >= cb.config.OpenDuration {
		cb.toState(StateHalfOpen)
	}
	return cb.state
}

// forceHalfOpen transitions an OPEN breaker to HALF_OPEN (health probe
// success) without counting against request counters.
func (cb *CircuitBreaker) forceHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen {
		cb.toState(StateHalfOpen)
	}
}

// toState transitions to a new state, resetting counters. Must hold cb.mu.
func (cb *CircuitBreaker) toState(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.stateEnteredAt = cb.config.Now()

	// Counters reset on every transition.
	cb.failures = 0
	cb.successes = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
