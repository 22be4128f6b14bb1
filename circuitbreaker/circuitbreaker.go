package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lyrics-sync-go/logcolors"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit tripped, requests blocked
	StateHalfOpen              // Testing if service recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// StateChangeFunc is called after every transition, outside the breaker's lock
type StateChangeFunc func(name string, from, to State)

// CircuitBreaker guards one upstream (a lyrics provider or the token endpoint)
type CircuitBreaker struct {
	name            string
	state           State
	failures        int           // consecutive failures
	threshold       int           // failures before opening
	cooldown        time.Duration // how long to stay open
	halfOpenTimeout time.Duration // max time to wait in half-open state
	lastFailureTime time.Time     // when circuit opened
	halfOpenStart   time.Time     // when half-open state began
	onStateChange   StateChangeFunc
	mu              sync.RWMutex
}

// Config holds circuit breaker configuration
type Config struct {
	Name            string        // Name for logging
	Threshold       int           // Number of consecutive failures before opening
	Cooldown        time.Duration // How long to stay open before testing
	HalfOpenTimeout time.Duration // Max time to wait in half-open state before resetting to open
	OnStateChange   StateChangeFunc
}

// Status is a point-in-time view used by the status server
type Status struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	Failures       int    `json:"failures"`
	Threshold      int    `json:"threshold"`
	TimeUntilRetry string `json:"time_until_retry"`
}

// New creates a new circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &CircuitBreaker{
		name:            cfg.Name,
		state:           StateClosed,
		threshold:       cfg.Threshold,
		cooldown:        cfg.Cooldown,
		halfOpenTimeout: cfg.HalfOpenTimeout,
		onStateChange:   cfg.OnStateChange,
	}
}

// Name returns the name the breaker logs under
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Allow checks if a request should be allowed
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := cb.allowLocked()
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

func (cb *CircuitBreaker) allowLocked() bool {
	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.cooldown {
			cb.state = StateHalfOpen
			cb.halfOpenStart = time.Now()
			log.Infof("%s Cooldown passed, transitioning to HALF-OPEN", logcolors.CircuitBreakerPrefix(cb.name))
			return true // one probe request
		}
		return false

	case StateHalfOpen:
		if time.Since(cb.halfOpenStart) >= cb.halfOpenTimeout {
			// probe never reported back
			cb.state = StateOpen
			cb.lastFailureTime = time.Now()
			log.Warnf("%s Half-open timeout expired, transitioning back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))
			return false
		}
		return false

	default:
		return true
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	switch cb.state {
	case StateHalfOpen:
		cb.state = StateClosed
		cb.failures = 0
		log.Infof("%s Probe succeeded, transitioning to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
	case StateClosed:
		cb.failures = 0
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		log.Warnf("%s Probe failed, transitioning back to OPEN", logcolors.CircuitBreakerPrefix(cb.name))

	case StateClosed:
		// warn once at 60% of threshold
		warningThreshold := (cb.threshold * 3) / 5
		if warningThreshold < 2 {
			warningThreshold = 2
		}
		if cb.failures == warningThreshold && cb.failures < cb.threshold {
			log.Warnf("%s High failure rate: %d/%d consecutive failures",
				logcolors.CircuitBreakerPrefix(cb.name), cb.failures, cb.threshold)
		}

		if cb.failures >= cb.threshold {
			cb.state = StateOpen
			log.Warnf("%s Threshold reached (%d failures), transitioning to OPEN (cooldown: %v)",
				logcolors.CircuitBreakerPrefix(cb.name), cb.failures, cb.cooldown)
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Execute runs fn if the breaker allows it and records the outcome.
// Errors for which isFailure returns false count as success; a nil isFailure counts every error.
func (cb *CircuitBreaker) Execute(fn func() error, isFailure func(error) bool) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && (isFailure == nil || isFailure(err)) {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return err
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() (state State, failures int, lastFailure time.Time) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state, cb.failures, cb.lastFailureTime
}

// Status returns a JSON-friendly snapshot
func (cb *CircuitBreaker) Status() Status {
	state, failures, _ := cb.Stats()
	return Status{
		Name:           cb.name,
		State:          state.String(),
		Failures:       failures,
		Threshold:      cb.Threshold(),
		TimeUntilRetry: cb.TimeUntilRetry().Round(time.Second).String(),
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures = 0
	cb.lastFailureTime = time.Time{}
	cb.halfOpenStart = time.Time{}
	cb.mu.Unlock()

	log.Infof("%s Manually reset to CLOSED", logcolors.CircuitBreakerPrefix(cb.name))
	cb.notify(from, StateClosed)
}

// IsOpen returns true if the circuit is open (blocking requests)
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state == StateOpen
}

// TimeUntilRetry returns how long until the circuit will try again.
// For HALF-OPEN it is the time left before the probe is given up on. Zero when closed.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	switch cb.state {
	case StateOpen:
		elapsed := time.Since(cb.lastFailureTime)
		if elapsed >= cb.cooldown {
			return 0
		}
		return cb.cooldown - elapsed

	case StateHalfOpen:
		elapsed := time.Since(cb.halfOpenStart)
		if elapsed >= cb.halfOpenTimeout {
			return 0
		}
		return cb.halfOpenTimeout - elapsed

	default:
		return 0
	}
}

// IsHalfOpen returns true if the circuit is in half-open state
func (cb *CircuitBreaker) IsHalfOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state == StateHalfOpen
}

// Threshold returns the configured failure threshold
func (cb *CircuitBreaker) Threshold() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.threshold
}
