package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionStatusIsValid(t *testing.T) {
	for _, s := range []ExecutionStatus{ExecSuccess, ExecFailure, ExecTimeout, ExecCompilationError} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, ExecutionStatus("crashed").IsValid())
}

func TestRawErrorLocation(t *testing.T) {
	tests := []struct {
		err  RawError
		want string
	}{
		{RawError{}, ""},
		{RawError{File: "a.go"}, "a.go"},
		{RawError{File: "a.go", Line: 3}, "a.go:3"},
		{RawError{File: "a.go", Line: 3, Column: 7}, "a.go:3:7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Location())
	}
}

func TestExitCodeOr(t *testing.T) {
	assert.Equal(t, -1, ExecutionResult{}.ExitCodeOr(-1))
	assert.Equal(t, 2, ExecutionResult{ExitCode: IntPtr(2)}.ExitCodeOr(-1))
}

func TestFailureCategoryIsValid(t *testing.T) {
	assert.Len(t, FailureCategories, 7)
	for _, c := range FailureCategories {
		assert.True(t, c.IsValid())
	}
	assert.False(t, FailureCategory("cosmic_ray").IsValid())
}

func TestPassRateOf(t *testing.T) {
	assert.Equal(t, 0.0, PassRateOf(0, 0))
	assert.Equal(t, 0.5, PassRateOf(1, 2))
	assert.Equal(t, 1.0, PassRateOf(3, 3))
}

func TestCategoryCounts(t *testing.T) {
	a := AnalysisResult{Failures: []FailureAnalysis{
		{Category: CategoryLogic}, {Category: CategoryRuntime}, {Category: CategoryLogic},
	}}
	assert.Equal(t, map[FailureCategory]int{CategoryLogic: 2, CategoryRuntime: 1}, a.CategoryCounts())
}

func TestHistoryPrependDoesNotMutate(t *testing.T) {
	var h History
	h1 := h.Prepend(RefinementResult{Iteration: 1, PassRate: 0.2})
	h2 := h1.Prepend(RefinementResult{Iteration: 2, PassRate: 0.6})

	assert.Len(t, h1, 1)
	assert.Len(t, h2, 2)
	assert.Equal(t, []float64{0.6, 0.2}, h2.PassRates())

	latest, ok := h2.Latest()
	assert.True(t, ok)
	assert.Equal(t, 2, latest.Iteration)

	_, ok = History(nil).Latest()
	assert.False(t, ok)
}
