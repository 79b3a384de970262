package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"epmasuppress/pkg/config"
	errs "epmasuppress/pkg/errors"
)

// BackoffStrategy sizes the pause before retry number attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
	Reset()
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// MaxDelay, with up to JitterFactor of it added or taken away at random.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// NewExponentialBackoff builds the backoff described by rc
func NewExponentialBackoff(rc config.RetryConfig) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    rc.BaseDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.Multiplier,
		JitterFactor: rc.JitterFactor,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	if eb.JitterFactor > 0 {
		spread := delay * eb.JitterFactor
		delay += rand.Float64()*2*spread - spread
	}
	return time.Duration(math.Max(delay, 0))
}

func (eb *ExponentialBackoff) Reset() {}

// ConstantBackoff waits Delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

func (cb *ConstantBackoff) Reset() {}

// Wait sleeps for delay, returning early with ctx's error if it is cancelled.
// A non-positive delay returns at once.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorTypeBackoff holds one strategy per kind of EPMA failure. A nil
// strategy retries without pausing.
type ErrorTypeBackoff struct {
	// StaleBackoff for note handles detached by a re-render
	StaleBackoff BackoffStrategy
	// InterceptedBackoff for clicks swallowed by an overlay
	InterceptedBackoff BackoffStrategy
	// TimeoutBackoff for waits that ran out of time
	TimeoutBackoff BackoffStrategy
	// DefaultBackoff for any other retried error
	DefaultBackoff BackoffStrategy
}

// NewErrorTypeBackoff settles for a fixed pause after stale handles and
// intercepted clicks, and backs off exponentially per rc after timeouts.
func NewErrorTypeBackoff(rc config.RetryConfig, settle time.Duration) *ErrorTypeBackoff {
	return &ErrorTypeBackoff{
		StaleBackoff:       &ConstantBackoff{Delay: settle},
		InterceptedBackoff: &ConstantBackoff{Delay: settle},
		TimeoutBackoff:     NewExponentialBackoff(rc),
		DefaultBackoff:     NewExponentialBackoff(rc),
	}
}

// GetBackoffForError returns the strategy registered for errorType
func (etb *ErrorTypeBackoff) GetBackoffForError(errorType errs.ErrorType) BackoffStrategy {
	var b BackoffStrategy
	switch errorType {
	case errs.ErrorTypeStale:
		b = etb.StaleBackoff
	case errs.ErrorTypeClickIntercepted:
		b = etb.InterceptedBackoff
	case errs.ErrorTypeTimeout:
		b = etb.TimeoutBackoff
	default:
		b = etb.DefaultBackoff
	}
	if b == nil {
		return &ConstantBackoff{}
	}
	return b
}
