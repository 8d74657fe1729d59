// Package resilience guards calls to the blob store so an unreachable
// backend fails fast instead of stalling every request.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"birthday-wall/backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker short-circuits calls
var ErrCircuitOpen = errors.New("circuit open")

// State is the breaker state
type State string

const (
	// StateClosed lets calls through
	StateClosed State = "closed"
	// StateOpen rejects calls until the retry timeout passes
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen State = "half-open"
)

// Config configures a CircuitBreaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// Timeout bounds each call; zero disables the per-call deadline
	Timeout time.Duration
	// RetryTimeout is how long the breaker stays open
	RetryTimeout time.Duration
	// IsFailure decides whether an error trips the breaker. By default
	// every error except context cancellation does.
	IsFailure func(error) bool
}

// DefaultConfig returns the settings used for the blob store
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		RetryTimeout:     30 * time.Second,
	}
}

// CircuitBreaker counts consecutive failures and opens once they pass
// FailureThreshold
type CircuitBreaker struct {
	config Config
	log    *logger.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failures        uint
	successes       uint
	inFlight        uint
	nextAttempt     time.Time
	lastFailure     time.Time
	totalRequests   uint64
	totalFailures   uint64
	totalRejections uint64
	openCount       uint64
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(config Config, log *logger.Logger) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &CircuitBreaker{
		config: config,
		log:    log.WithComponent("breaker." + config.Name),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Execute runs fn unless the breaker is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.allow() {
		cb.log.Warn("Circuit breaker rejected call", "state", string(cb.State()))
		return ErrCircuitOpen
	}

	if cb.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.config.Timeout)
		defer cancel()
	}

	start := cb.now()
	err := fn(ctx)
	if err != nil && cb.config.IsFailure(err) {
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"error", err.Error(),
			"duration", cb.now().Sub(start).String(),
		)
		return err
	}
	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.nextAttempt) {
			cb.totalRejections++
			return false
		}
		cb.toHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.inFlight+cb.successes >= cb.config.SuccessThreshold {
			cb.totalRejections++
			return false
		}
		cb.inFlight++
	}
	cb.totalRequests++
	return true
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.inFlight--
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.inFlight--
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openCount++
	cb.successes = 0
	cb.nextAttempt = cb.now().Add(cb.config.RetryTimeout)
	cb.log.Info("Circuit breaker opened",
		"failures", cb.failures,
		"nextAttempt", cb.nextAttempt.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successes = 0
	cb.inFlight = 0
	cb.log.Info("Circuit breaker half-open")
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
	cb.inFlight = 0
	cb.log.Info("Circuit breaker closed")
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns counters for the health endpoint
func (cb *CircuitBreaker) Metrics() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	m := map[string]any{
		"name":             cb.config.Name,
		"state":            string(cb.state),
		"total_requests":   cb.totalRequests,
		"total_failures":   cb.totalFailures,
		"total_rejections": cb.totalRejections,
		"open_count":       cb.openCount,
	}
	if !cb.lastFailure.IsZero() {
		m["last_failure"] = cb.lastFailure.Format(time.RFC3339)
	}
	return m
}
