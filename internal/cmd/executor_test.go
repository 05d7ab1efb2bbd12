package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/recovery"
)

type flakyExecutor struct {
	errs  []error
	calls int
}

func (f *flakyExecutor) Execute(context.Context, string, string) (models.ExecutionResult, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return models.ExecutionResult{}, f.errs[i]
	}
	return models.ExecutionResult{Status: models.ExecFailure, ExitCode: models.IntPtr(1)}, nil
}

var fastRetry = recovery.RetryConfig{
	MaxRetries:    3,
	InitialDelay:  time.Millisecond,
	MaxDelay:      2 * time.Millisecond,
	BackoffFactor: 2,
}

func TestRetryingExecutor_RetriesSandboxStartFailures(t *testing.T) {
	startErr := recovery.CreateError(recovery.CategoryExecution, recovery.ReasonSandboxStart, nil)
	inner := &flakyExecutor{errs: []error{startErr, startErr}}

	res, err := newRetryingExecutor(inner, fastRetry, nil).Execute(context.Background(), "c", "s")
	require.NoError(t, err)
	assert.Equal(t, models.ExecFailure, res.Status, "test failures pass through untouched")
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingExecutor_GivesUp(t *testing.T) {
	startErr := recovery.CreateError(recovery.CategoryExecution, recovery.ReasonSandboxStart, nil)
	inner := &flakyExecutor{errs: []error{startErr, startErr, startErr, startErr, startErr}}

	_, err := newRetryingExecutor(inner, fastRetry, nil).Execute(context.Background(), "c", "s")
	require.Error(t, err)
	serr, ok := recovery.AsStructured(err)
	require.True(t, ok)
	assert.Equal(t, recovery.ReasonMaxRetries, serr.Reason)
	assert.True(t, serr.RecoveryAttempted)
	assert.Equal(t, 5, inner.calls, "first call plus four attempts from the retry loop")
}

func TestRetryingExecutor_DoesNotRetryActionErrors(t *testing.T) {
	actionErr := recovery.CreateError(recovery.CategoryExecution, recovery.ReasonActionError, nil)
	inner := &flakyExecutor{errs: []error{actionErr}}

	_, err := newRetryingExecutor(inner, fastRetry, nil).Execute(context.Background(), "c", "s")
	assert.Same(t, actionErr, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingExecutor_PassesThroughSuccess(t *testing.T) {
	inner := &flakyExecutor{}
	res, err := newRetryingExecutor(inner, fastRetry, nil).Execute(context.Background(), "c", "s")
	require.NoError(t, err)
	assert.Equal(t, models.ExecFailure, res.Status)
	assert.Equal(t, 1, inner.calls)
}
