package recovery

import (
	"context"
	"fmt"

	"github.com/harrison/crucible/internal/metrics"
)

// Logger receives recovery diagnostics. Logging is a side effect only; no
// return value or branch depends on it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

// SkipResult is the success value returned for skip_continue.
type SkipResult struct{}

// Skipped is returned by HandleError when the strategy is skip_continue.
var Skipped = SkipResult{}

// Options supplies the collaborators a strategy may need.
type Options struct {
	// Strategy overrides the decision table when non-empty.
	Strategy Strategy

	// RetryFn is re-invoked through WithRetry for the retry strategy.
	RetryFn func() (interface{}, error)

	// RetryConfig is used for the retry strategy; the zero value means
	// DefaultRetryConfig.
	RetryConfig RetryConfig

	// RetryOptions are passed through to WithRetry.
	RetryOptions []RetryOption

	// FallbackFn is invoked for fallback_simpler and fallback_direct.
	FallbackFn func() (interface{}, error)
}

// Handler dispatches structured errors to recovery strategies.
type Handler struct {
	logger Logger
}

// NewHandler creates a Handler. A nil logger discards diagnostics.
func NewHandler(logger Logger) *Handler {
	return &Handler{logger: loggerOrNop(logger)}
}

// HandleError runs the recovery strategy for serr and returns either a
// success value or a StructuredError. It never panics: panics raised by
// collaborators are converted into errors.
func (h *Handler) HandleError(ctx context.Context, serr *StructuredError, errCtx map[string]interface{}, opts Options) (result interface{}, err error) {
	if serr == nil {
		serr = CreateError(CategoryUnknown, "nil_error", nil)
	}
	if len(errCtx) > 0 {
		cp := *serr
		cp.Context = make(map[string]interface{}, len(serr.Context)+len(errCtx))
		for k, v := range serr.Context {
			cp.Context[k] = v
		}
		for k, v := range errCtx {
			cp.Context[k] = v
		}
		serr = &cp
	}

	strategy := SelectRecoveryStrategy(serr, opts.Strategy)
	metrics.RecoveryStrategies.WithLabelValues(string(serr.Category), string(strategy)).Inc()
	h.logger.Debugf("recovering from %s/%s with %s", serr.Category, serr.Reason, strategy)

	defer func() {
		if r := recover(); r != nil {
			perr := CreateError(CategoryUnknown, ReasonPanic, map[string]interface{}{"panic": fmt.Sprint(r)})
			perr.OriginalError = serr
			result, err = nil, perr.markAttempted(strategy)
		}
	}()

	switch strategy {
	case StrategyRetry:
		return h.retry(ctx, serr, opts)
	case StrategyFallbackSimpler, StrategyFallbackDirect:
		return h.fallback(serr, strategy, opts)
	case StrategySkipContinue:
		return Skipped, nil
	case StrategyFailFast:
		cp := *serr
		cp.RecoveryStrategy = StrategyFailFast
		return nil, &cp
	default:
		return nil, serr.markAttempted(strategy)
	}
}

func (h *Handler) retry(ctx context.Context, serr *StructuredError, opts Options) (interface{}, error) {
	if opts.RetryFn == nil {
		h.logger.Warnf("retry strategy selected for %s/%s but no retry function was supplied", serr.Category, serr.Reason)
		return nil, serr.markAttempted(StrategyRetry)
	}
	cfg := opts.RetryConfig
	if cfg == (RetryConfig{}) {
		cfg = DefaultRetryConfig()
	}
	retryOpts := append([]RetryOption{WithLogger(h.logger)}, opts.RetryOptions...)
	v, err := WithRetry[interface{}](ctx, opts.RetryFn, cfg, retryOpts...)
	if err != nil {
		out, ok := AsStructured(err)
		if !ok {
			out = Wrap(err, nil)
		}
		return nil, out.markAttempted(StrategyRetry)
	}
	return v, nil
}

func (h *Handler) fallback(serr *StructuredError, strategy Strategy, opts Options) (interface{}, error) {
	if opts.FallbackFn == nil {
		h.logger.Warnf("%s strategy selected for %s/%s but no fallback function was supplied", strategy, serr.Category, serr.Reason)
		return nil, serr.markAttempted(strategy)
	}
	v, err := opts.FallbackFn()
	if err != nil {
		h.logger.Warnf("%s failed: %v", strategy, err)
		out := serr.markAttempted(strategy)
		out.OriginalError = err
		return nil, out
	}
	return v, nil
}
