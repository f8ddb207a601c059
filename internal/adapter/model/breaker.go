package model

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"ledbutler/internal/domain"
)

var _ domain.ModelProvider = (*BreakerProvider)(nil)

const (
	defaultBreakerMaxFailures uint32 = 5
	breakerOpenTimeout               = 30 * time.Second
	breakerInterval                  = 60 * time.Second
)

// BreakerProvider wraps a provider with a circuit breaker. When the model
// server fails repeatedly, the circuit opens and calls short-circuit to
// ErrModelUnavailable without touching the network, so a dead server costs
// the command path nothing while the circuit is open.
type BreakerProvider struct {
	inner   domain.ModelProvider
	breaker *gobreaker.CircuitBreaker[*domain.CompletionResponse]
}

// NewBreakerProvider wraps inner. maxFailures <= 0 uses the default of 5
// consecutive failures before the circuit opens.
func NewBreakerProvider(inner domain.ModelProvider, maxFailures int, logger *slog.Logger) *BreakerProvider {
	threshold := defaultBreakerMaxFailures
	if maxFailures > 0 {
		threshold = uint32(maxFailures)
	}

	cb := gobreaker.NewCircuitBreaker[*domain.CompletionResponse](gobreaker.Settings{
		Name:        "model:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    breakerInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("model circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerProvider{inner: inner, breaker: cb}
}

// Complete implements domain.ModelProvider through the breaker.
func (p *BreakerProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.CompletionResponse, error) {
		return p.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewDomainError("model.breaker", domain.ErrModelUnavailable, "circuit open")
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.ModelProvider.
func (p *BreakerProvider) Name() string { return p.inner.Name() }

// IsHealthy delegates to the inner provider when it supports probing.
// An open circuit reports unhealthy regardless.
func (p *BreakerProvider) IsHealthy(ctx context.Context) bool {
	if p.breaker.State() == gobreaker.StateOpen {
		return false
	}
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.IsHealthy(ctx)
	}
	return true
}

// State exposes the breaker state for status reporting.
func (p *BreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}
