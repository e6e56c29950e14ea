package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryOptions configures a Retrying classifier
type RetryOptions struct {
	// Attempts is the total number of calls per page, at least 1
	Attempts int
	// Backoff is multiplied by the attempt number between calls
	Backoff time.Duration
	// RequestsPerMinute paces calls to the model; 0 disables pacing
	RequestsPerMinute int
}

// Retrying wraps a PageClassifier with retries and optional rate limiting
type Retrying struct {
	next     PageClassifier
	attempts int
	backoff  time.Duration
	limiter  *rate.Limiter
}

// NewRetrying wraps next
func NewRetrying(next PageClassifier, opts RetryOptions) *Retrying {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	r := &Retrying{
		next:     next,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}
	if opts.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return r
}

// ClassifyPage calls the wrapped classifier until it succeeds or attempts run out
func (r *Retrying) ClassifyPage(ctx context.Context, pageImage []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		text, err := r.next.ClassifyPage(ctx, pageImage)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || attempt == r.attempts {
			break
		}

		wait := time.Duration(attempt) * r.backoff
		slog.Warn("Retrying page classification", "attempt", attempt, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("giving up after %d attempts: %w", r.attempts, lastErr)
}

// Close closes the wrapped classifier
func (r *Retrying) Close() error {
	return r.next.Close()
}
