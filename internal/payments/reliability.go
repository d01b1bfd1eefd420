package payments

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the gateway circuit breaker is open. It is
// classified as a non-retryable payment failure: a dead processor should
// not be hammered with further attempts.
var ErrCircuitOpen = errors.New("payment gateway circuit open")

// CircuitBreakerConfig configures the gateway circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
	Now          func() time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// CircuitBreaker stops gateway calls after repeated failures and lets a
// single trial call through once the reset timeout elapses.
type CircuitBreaker struct {
	mu         sync.Mutex
	maxFails   int
	resetAfter time.Duration
	now        func() time.Time

	state          circuitState
	failures       int
	openedAt       time.Time
	halfOpenFlight bool
}

// NewCircuitBreaker constructs a circuit breaker with sane defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	maxFails := cfg.MaxFailures
	if maxFails < 1 {
		maxFails = 1
	}
	resetAfter := cfg.ResetTimeout
	if resetAfter <= 0 {
		resetAfter = 2 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		maxFails:   maxFails,
		resetAfter: resetAfter,
		now:        now,
		state:      circuitClosed,
	}
}

// Execute runs the given function while enforcing breaker state.
func (c *CircuitBreaker) Execute(fn func() error) error {
	if c == nil {
		return fn()
	}

	now := c.now()

	c.mu.Lock()
	switch c.state {
	case circuitOpen:
		if now.Sub(c.openedAt) < c.resetAfter {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
		c.state = circuitHalfOpen
	case circuitHalfOpen:
		if c.halfOpenFlight {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	if c.state == circuitHalfOpen {
		c.halfOpenFlight = true
	}
	c.mu.Unlock()

	err := fn()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == circuitHalfOpen {
		c.halfOpenFlight = false
	}

	if err == nil {
		c.state = circuitClosed
		c.failures = 0
		return nil
	}

	if c.state == circuitHalfOpen {
		c.state = circuitOpen
		c.openedAt = now
		c.failures = 0
		return err
	}

	c.failures++
	if c.failures >= c.maxFails {
		c.state = circuitOpen
		c.openedAt = now
	}
	return err
}

// ReliableGateway wraps a Gateway with a circuit breaker. Retry stays in
// the Processor; the breaker only guards against a gateway that is down
// across many orders.
type ReliableGateway struct {
	base    Gateway
	breaker *CircuitBreaker
}

// NewReliableGateway constructs a breaker-guarded gateway.
func NewReliableGateway(base Gateway, breaker *CircuitBreaker) *ReliableGateway {
	return &ReliableGateway{base: base, breaker: breaker}
}

func (g *ReliableGateway) Charge(ctx context.Context, req Request) (Receipt, error) {
	var receipt Receipt
	err := g.breaker.Execute(func() error {
		var chargeErr error
		receipt, chargeErr = g.base.Charge(ctx, req)
		return chargeErr
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
