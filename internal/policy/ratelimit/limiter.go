// Package ratelimit paces outbound detail requests with a token bucket so the
// crawl stays under the remote service's implicit rate limit.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/steam-catalog-crawler/internal/metrics"
)

// Limiter spaces calls to Wait at least Interval apart.
type Limiter struct {
	limiter *rate.Limiter
}

// Config holds pacing configuration.
type Config struct {
	// Interval is the minimum spacing between requests. Zero disables pacing.
	Interval time.Duration
}

// New creates a new Limiter. The first Wait returns immediately.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be sent, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(waited)
	}
	return nil
}
