package recovery

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harrison/crucible/internal/metrics"
)

// jitterFraction caps jitter at 10% of the computed delay.
const jitterFraction = 0.1

// RetryConfig controls WithRetry. It is a value type supplied per call.
type RetryConfig struct {
	MaxRetries    int           // retries after the first attempt (>= 0)
	InitialDelay  time.Duration // delay before the first retry (> 0)
	MaxDelay      time.Duration // upper bound for any single delay (> 0)
	BackoffFactor float64       // growth per attempt (> 1.0)
	Jitter        bool          // add up to 10% uniform jitter
}

// DefaultRetryConfig returns the defaults used when no config is supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Validate checks the config invariants and reports violations as a
// non-recoverable config_error.
func (c RetryConfig) Validate() error {
	var problem string
	switch {
	case c.MaxRetries < 0:
		problem = fmt.Sprintf("max_retries must be >= 0, got %d", c.MaxRetries)
	case c.InitialDelay <= 0:
		problem = fmt.Sprintf("initial_delay must be > 0, got %v", c.InitialDelay)
	case c.MaxDelay <= 0:
		problem = fmt.Sprintf("max_delay must be > 0, got %v", c.MaxDelay)
	case c.BackoffFactor <= 1.0:
		problem = fmt.Sprintf("backoff_factor must be > 1.0, got %v", c.BackoffFactor)
	default:
		return nil
	}
	return CreateError(CategoryConfig, ReasonInvalidConfig, map[string]interface{}{"problem": problem})
}

// Delay is CalculateDelay bound to this config.
func (c RetryConfig) Delay(attempt int) time.Duration {
	return CalculateDelay(attempt, c.InitialDelay, c.BackoffFactor, c.MaxDelay, c.Jitter)
}

// CalculateDelay returns min(initial * factor^attempt, max), plus uniform
// jitter in [0, 10% of that delay] when jitter is set.
func CalculateDelay(attempt int, initial time.Duration, factor float64, max time.Duration, jitter bool) time.Duration {
	return calculateDelay(attempt, initial, factor, max, jitter, rand.Float64)
}

func calculateDelay(attempt int, initial time.Duration, factor float64, max time.Duration, jitter bool, randFn func() float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(initial) * math.Pow(factor, float64(attempt))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > float64(max) {
		delay = float64(max)
	}
	if jitter {
		delay += randFn() * jitterFraction * delay
	}
	return time.Duration(delay)
}

// Operation is the unit of work retried by WithRetry.
type Operation[T any] func() (T, error)

// RetryOption customizes a single WithRetry call.
type RetryOption func(*retryOptions)

type retryOptions struct {
	timer  backoff.Timer
	randFn func() float64
	notify func(attempt int, err error, delay time.Duration)
	logger Logger
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t backoff.Timer) RetryOption {
	return func(o *retryOptions) { o.timer = t }
}

// WithRandSource replaces the jitter source. f must return values in [0, 1).
func WithRandSource(f func() float64) RetryOption {
	return func(o *retryOptions) { o.randFn = f }
}

// WithNotify registers a callback invoked before each sleep.
func WithNotify(f func(attempt int, err error, delay time.Duration)) RetryOption {
	return func(o *retryOptions) { o.notify = f }
}

// WithLogger routes retry diagnostics to l.
func WithLogger(l Logger) RetryOption {
	return func(o *retryOptions) { o.logger = l }
}

// policyBackOff feeds the RetryConfig delay schedule into backoff.
type policyBackOff struct {
	cfg     RetryConfig
	randFn  func() float64
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	d := calculateDelay(b.attempt, b.cfg.InitialDelay, b.cfg.BackoffFactor, b.cfg.MaxDelay, b.cfg.Jitter, b.randFn)
	b.attempt++
	return d
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

// WithRetry runs op until it succeeds or MaxRetries+1 attempts have been
// made, sleeping on the calling goroutine between attempts. Exhaustion yields
// a *StructuredError with reason max_retries_exceeded, the attempt count in
// Context["attempts"] and the last failure as OriginalError. Cancelling ctx
// stops the loop early with the same shape of error.
func WithRetry[T any](ctx context.Context, op Operation[T], cfg RetryConfig, opts ...RetryOption) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	o := retryOptions{randFn: rand.Float64}
	for _, opt := range opts {
		opt(&o)
	}
	log := loggerOrNop(o.logger)

	attempts := 0
	var lastErr error
	wrapped := func() (T, error) {
		attempts++
		v, err := op()
		if err != nil {
			lastErr = err
		}
		return v, err
	}
	notify := func(err error, delay time.Duration) {
		metrics.RetryAttempts.WithLabelValues(string(CategorizeError(err))).Inc()
		log.Debugf("attempt %d failed (%v), retrying in %v", attempts, err, delay)
		if o.notify != nil {
			o.notify(attempts, err, delay)
		}
	}

	policy := &policyBackOff{cfg: cfg, randFn: o.randFn}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(cfg.MaxRetries)), ctx)

	v, err := backoff.RetryNotifyWithTimerAndData(wrapped, b, notify, o.timer)
	if err == nil {
		return v, nil
	}

	cause := lastErr
	if cause == nil {
		cause = err
	}
	serr := CreateError(CategorizeError(cause), ReasonMaxRetries, map[string]interface{}{
		"attempts":    attempts,
		"last_reason": string(ReasonOf(cause)),
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		serr.Context["canceled"] = ctxErr.Error()
	}
	serr.OriginalError = cause
	log.Warnf("giving up after %d attempt(s): %v", attempts, cause)
	return zero, serr
}
