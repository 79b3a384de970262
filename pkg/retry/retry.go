package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "epmasuppress/pkg/errors"
	"epmasuppress/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultRetryIf retries typed UI errors whose type is retryable.
// Untyped errors are not retried: the page is in an unknown state.
func DefaultRetryIf(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var uiErr *errs.Error
	if errors.As(err, &uiErr) {
		return errs.IsRetryable(uiErr.Type)
	}
	return false
}

// Do executes an operation with retry logic. A nil cfg runs op once.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{MaxAttempts: 1}
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = &ConstantBackoff{}
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	attempt := 0

	for {
		attempt++

		if cfg.MaxAttempts > 0 && attempt > cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   attempt - 1,
					"last_error": lastErr.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		err := op()
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		lastErr = err

		if !retryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := backoff.NextDelay(attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"error":        err.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": cfg.MaxAttempts,
			})
		}

		if err := Wait(ctx, delay); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
					"attempt": attempt,
					"reason":  err.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// UIRetrier retries browser interactions, sizing each delay from the type
// of the failure that caused it.
type UIRetrier struct {
	maxAttempts int
	backoff     *ErrorTypeBackoff
	retryIf     func(error) bool
	onRetry     func(attempt int, err error, delay time.Duration)
	logger      logger.Logger
}

// NewUIRetrier creates a retrier for browser interactions. Only errors
// accepted by DefaultRetryIf are retried until RetryIf says otherwise.
func NewUIRetrier(maxAttempts int, etb *ErrorTypeBackoff, log logger.Logger) *UIRetrier {
	if etb == nil {
		etb = &ErrorTypeBackoff{}
	}
	return &UIRetrier{
		maxAttempts: maxAttempts,
		backoff:     etb,
		retryIf:     DefaultRetryIf,
		logger:      log,
	}
}

// RetryIf returns a copy of the retrier that retries errors matching fn
func (ur *UIRetrier) RetryIf(fn func(error) bool) *UIRetrier {
	cp := *ur
	cp.retryIf = fn
	return &cp
}

// OnRetry returns a copy of the retrier that calls fn before each retry
func (ur *UIRetrier) OnRetry(fn func(attempt int, err error, delay time.Duration)) *UIRetrier {
	cp := *ur
	cp.onRetry = fn
	return &cp
}

// MaxAttempts returns the configured attempt bound
func (ur *UIRetrier) MaxAttempts() int {
	return ur.maxAttempts
}

// DoWithErrorType executes op, sizing each delay from the type of the last error
func (ur *UIRetrier) DoWithErrorType(ctx context.Context, op Operation) error {
	selector := &typedBackoff{etb: ur.backoff}
	return Do(func() error {
		err := op()
		selector.last = errs.TypeOf(err)
		return err
	}, &Config{
		MaxAttempts: ur.maxAttempts,
		Backoff:     selector,
		RetryIf:     ur.retryIf,
		OnRetry:     ur.onRetry,
		Context:     ctx,
		Logger:      ur.logger,
	})
}

// DoTyped is DoWithErrorType for operations that return a result
func DoTyped[T any](ctx context.Context, ur *UIRetrier, op OperationWithResult[T]) (T, error) {
	var result T
	err := ur.DoWithErrorType(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

// typedBackoff delegates to the strategy registered for the last error type
type typedBackoff struct {
	etb  *ErrorTypeBackoff
	last errs.ErrorType
}

func (t *typedBackoff) NextDelay(attempt int) time.Duration {
	return t.etb.GetBackoffForError(t.last).NextDelay(attempt)
}

func (t *typedBackoff) Reset() {
	t.last = ""
}
