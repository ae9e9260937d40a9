// Package retry bounds transient-failure retries with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy configures bounded retries. The zero value is unusable; call
// DefaultPolicy or fill the fields explicitly.
type Policy struct {
	// MaxAttempts is the total number of calls, first attempt included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff sequence.
	BaseDelay time.Duration
	// MaxDelay caps individual backoff delays.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive attempts.
	Multiplier float64
	// Jitter randomizes each delay within a ±25% band.
	Jitter bool
	// Classify reports whether an error is worth retrying. Nil means
	// IsTransient, so only errors wrapped by Transient are retried.
	Classify func(error) bool
	// OnRetry observes each scheduled retry before its delay elapses.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy suits most backend HTTP calls.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, the classifier rejects its error, attempts
// run out, or ctx is done. The last error is returned wrapped with the
// attempt count once the budget is exhausted.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	pol := p.normalized()
	classify := pol.Classify
	if classify == nil {
		classify = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := pol.delay(attempt)
			if pol.OnRetry != nil {
				pol.OnRetry(attempt, delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", pol.MaxAttempts, lastErr)
}

// delay computes the backoff before the given attempt (attempt >= 2).
func (p *Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		band := d * 0.25
		d += (rand.Float64()*2 - 1) * band
	}
	if d < float64(p.BaseDelay) {
		d = float64(p.BaseDelay)
	}
	return time.Duration(d)
}

func (p *Policy) normalized() Policy {
	pol := *p
	if pol.MaxAttempts < 1 {
		pol.MaxAttempts = 1
	}
	if pol.BaseDelay <= 0 {
		pol.BaseDelay = 500 * time.Millisecond
	}
	if pol.MaxDelay <= 0 {
		pol.MaxDelay = 10 * time.Second
	}
	if pol.Multiplier < 1.0 {
		pol.Multiplier = 2.0
	}
	return pol
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as retryable for the default classifier.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries the Transient marker.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
