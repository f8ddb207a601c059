package model

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"ledbutler/internal/domain"
)

var _ domain.ModelProvider = (*ThrottledProvider)(nil)

// ThrottledProvider caps the rate of model calls with a token bucket.
// Back-to-back inference saturates a small board's CPU; a capped rate
// keeps the blink loop and console responsive. A throttled call waits
// inside the caller's context; deadline expiry while waiting surfaces as
// a model timeout, the same degradation as a slow model.
type ThrottledProvider struct {
	inner   domain.ModelProvider
	limiter *rate.Limiter
}

// NewThrottledProvider wraps inner with a per-minute rate cap.
// perMinute <= 0 disables throttling.
func NewThrottledProvider(inner domain.ModelProvider, perMinute int) *ThrottledProvider {
	var limiter *rate.Limiter
	if perMinute > 0 {
		burst := perMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perMinute)/60.0, burst)
	}
	return &ThrottledProvider{inner: inner, limiter: limiter}
}

// Complete implements domain.ModelProvider, waiting for a token first.
func (p *ThrottledProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, domain.NewDomainError("model.throttle", domain.ErrModelTimeout, "deadline expired waiting for rate limit")
			}
			return nil, domain.NewDomainError("model.throttle", domain.ErrModelUnavailable, err.Error())
		}
	}
	return p.inner.Complete(ctx, req)
}

// Name implements domain.ModelProvider.
func (p *ThrottledProvider) Name() string { return p.inner.Name() }

// IsHealthy delegates to the inner provider when it supports probing.
func (p *ThrottledProvider) IsHealthy(ctx context.Context) bool {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.IsHealthy(ctx)
	}
	return true
}
