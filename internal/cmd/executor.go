package cmd

import (
	"context"

	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/recovery"
	"github.com/harrison/crucible/internal/refiner"
)

// retryingExecutor re-runs an iteration's sandbox call when it fails for a
// transient infrastructure reason (for example a workspace that could not be
// created). Test failures are results, not errors, and are never retried.
type retryingExecutor struct {
	inner   refiner.Executor
	handler *recovery.Handler
	retry   recovery.RetryConfig
	opts    []recovery.RetryOption
}

func newRetryingExecutor(inner refiner.Executor, retry recovery.RetryConfig, log recovery.Logger, opts ...recovery.RetryOption) *retryingExecutor {
	return &retryingExecutor{
		inner:   inner,
		handler: recovery.NewHandler(log),
		retry:   retry,
		opts:    opts,
	}
}

func (e *retryingExecutor) Execute(ctx context.Context, candidate, suite string) (models.ExecutionResult, error) {
	res, err := e.inner.Execute(ctx, candidate, suite)
	if err == nil || ctx.Err() != nil {
		return res, err
	}

	serr := recovery.Wrap(err, nil)
	if recovery.SelectRecoveryStrategy(serr) != recovery.StrategyRetry {
		return res, err
	}

	v, herr := e.handler.HandleError(ctx, serr, nil, recovery.Options{
		Strategy: recovery.StrategyRetry,
		RetryFn: func() (interface{}, error) {
			return e.inner.Execute(ctx, candidate, suite)
		},
		RetryConfig:  e.retry,
		RetryOptions: e.opts,
	})
	if herr != nil {
		return models.ExecutionResult{}, herr
	}
	return v.(models.ExecutionResult), nil
}
