package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	PolicyNone                = "none"
	PolicyRetry               = "retry"
	PolicyCircuitBreaker      = "circuit-breaker"
	PolicyRetryCircuitBreaker = "retry-circuit-breaker"
)

var ErrUnknownPolicy = errors.New("unknown warehouse policy")

type PolicyConfig struct {
	Name                 string
	RetryMax             int
	RetryInitialInterval time.Duration
	BreakerFailures      uint32
	BreakerOpenTimeout   time.Duration
}

// policy runs one outbound call under a resilience strategy.
type policy interface {
	Do(ctx context.Context, call func(ctx context.Context) error) error
}

// StatusError is a non-success answer from the warehouse.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("warehouse returned %d: %s", e.Code, e.Body)
}

// transient reports whether err is worth another attempt. Client errors other
// than throttling, timeouts and an order still in progress will fail the same
// way again.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError ||
			se.Code == http.StatusTooManyRequests ||
			se.Code == http.StatusRequestTimeout ||
			se.Code == http.StatusConflict
	}
	return true
}

func newPolicy(cfg PolicyConfig) (policy, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	switch name {
	case "", PolicyNone:
		return noPolicy{}, nil
	case PolicyRetry:
		return &retryPolicy{max: cfg.RetryMax, initial: cfg.RetryInitialInterval, next: noPolicy{}}, nil
	case PolicyCircuitBreaker:
		return newBreakerPolicy(cfg), nil
	case PolicyRetryCircuitBreaker:
		return &retryPolicy{max: cfg.RetryMax, initial: cfg.RetryInitialInterval, next: newBreakerPolicy(cfg)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, cfg.Name)
	}
}

type noPolicy struct{}

func (noPolicy) Do(ctx context.Context, call func(ctx context.Context) error) error {
	return call(ctx)
}

// retryPolicy retries transient failures with exponential backoff, each
// attempt going through next.
type retryPolicy struct {
	max     int
	initial time.Duration
	next    policy
}

func (p *retryPolicy) Do(ctx context.Context, call func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := p.next.Do(ctx, call)
		if err == nil {
			return nil
		}
		if !transient(err) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.max)), ctx))
}

// breakerPolicy stops calling the warehouse after consecutive transient
// failures until the open timeout passes.
type breakerPolicy struct {
	cb *gobreaker.CircuitBreaker
}

func newBreakerPolicy(cfg PolicyConfig) *breakerPolicy {
	failures := cfg.BreakerFailures
	return &breakerPolicy{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "warehouse",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
	})}
}

func (p *breakerPolicy) Do(ctx context.Context, call func(ctx context.Context) error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, call(ctx)
	})
	return err
}
