package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewLimiter turns a requests-per-minute quota into a token bucket. The daily
// quota is informational only.
func NewLimiter(l RateLimits) *rate.Limiter {
	if l.PerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := l.PerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(l.PerMinute)/60), burst)
}

// Wait blocks for a token. A wait that cannot finish before the context
// deadline fails with ErrRateLimited; cancellation is passed through.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}
