// Package rlimit throttles a Socket Channel's outbound sends with a token
// bucket, guarding a connection from overwhelming a rate-limited backend
// with retries or pushes. Grounded directly on the teacher's
// RateLimitMiddleware: the limiter is constructed once and shared across
// every call, never rebuilt per request.
package rlimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter wraps a golang.org/x/time/rate.Limiter sized in bytes rather than
// requests, since a Socket Channel's unit of work is an encoded packet of
// variable size, not a fixed-cost call.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a Limiter refilling at bytesPerSec tokens/sec, up to burst
// bytes of instantaneous allowance. Constructed once per connection, the
// same way the teacher builds one rate.Limiter per middleware chain, not
// per request.
func New(bytesPerSec float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Wait blocks until n bytes' worth of tokens are available or ctx is
// cancelled, satisfying channel.Limiter.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if err := l.bucket.WaitN(ctx, n); err != nil {
		return fmt.Errorf("rlimit: %w", err)
	}
	return nil
}
