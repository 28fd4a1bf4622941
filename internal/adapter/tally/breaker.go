package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// breaker guards the Tally requester. After MaxFailures consecutive server
// side failures the circuit opens and calls fail fast until Timeout passes.
type breaker struct {
	cb *gobreaker.CircuitBreaker[[]byte]
}

func newBreaker(cfg config.CircuitBreakerConfig, logger *slog.Logger) *breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "tally:api",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: countsAsSuccess,
	})
	return &breaker{cb: cb}
}

// countsAsSuccess keeps caller mistakes from tripping the breaker: client
// errors other than 429 and caller cancellation are not failures of the API.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var ae *domain.APIError
	if errors.As(err, &ae) && ae.StatusCode >= 400 && ae.StatusCode < 500 {
		return ae.StatusCode != http.StatusTooManyRequests
	}
	// GraphQL errors arrive with a 200.
	return errors.As(err, &ae) && ae.StatusCode == 0
}

// execute runs fn through the breaker.
func (b *breaker) execute(fn func() ([]byte, error)) ([]byte, error) {
	out, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("tally api %w: %w", domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return out, nil
}

// State returns the current breaker state for monitoring.
func (b *breaker) State() gobreaker.State { return b.cb.State() }
