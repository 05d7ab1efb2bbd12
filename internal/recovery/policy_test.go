package recovery

import "testing"

func TestSelectRecoveryStrategy(t *testing.T) {
	tests := []struct {
		category Category
		reason   Reason
		want     Strategy
	}{
		{CategoryLLM, ReasonTimeout, StrategyRetry},
		{CategoryLLM, ReasonRateLimit, StrategyRetry},
		{CategoryLLM, ReasonAPIError, StrategyFallbackSimpler},
		{CategoryLLM, ReasonInvalidResponse, StrategyFallbackSimpler},
		{CategoryLLM, "token_limit", StrategyFallbackDirect},
		{CategoryExecution, ReasonUnexpectedOutcome, StrategyRetry},
		{CategoryExecution, ReasonSandboxStart, StrategyRetry},
		{CategoryExecution, ReasonActionError, StrategyFallbackDirect},
		{CategoryExecution, ReasonExecutionTimeout, StrategySkipContinue},
		{CategoryExecution, "process_killed", StrategySkipContinue},
		{CategoryConfig, ReasonInvalidConfig, StrategyFailFast},
		{CategoryConfig, ReasonMissingConfig, StrategyFailFast},
		{CategoryUnknown, "weird", StrategySkipContinue},
	}
	for _, tt := range tests {
		err := CreateError(tt.category, tt.reason, nil)
		if got := SelectRecoveryStrategy(err); got != tt.want {
			t.Errorf("SelectRecoveryStrategy(%s/%s) = %s, want %s", tt.category, tt.reason, got, tt.want)
		}
	}
}

func TestSelectRecoveryStrategy_Override(t *testing.T) {
	err := CreateError(CategoryConfig, ReasonInvalidConfig, nil)
	if got := SelectRecoveryStrategy(err, StrategyRetry); got != StrategyRetry {
		t.Errorf("override should win, got %s", got)
	}
	if got := SelectRecoveryStrategy(err, Strategy("nonsense")); got != StrategyFailFast {
		t.Errorf("invalid override should be ignored, got %s", got)
	}
}

func TestSelectRecoveryStrategy_UnknownNonRecoverable(t *testing.T) {
	err := CreateError(CategoryUnknown, "weird", nil)
	err.Recoverable = false
	if got := SelectRecoveryStrategy(err); got != StrategyFailFast {
		t.Errorf("got %s, want fail_fast", got)
	}
	if got := SelectRecoveryStrategy(nil); got != StrategyFailFast {
		t.Errorf("nil error: got %s, want fail_fast", got)
	}
}

func TestIsRecoverable(t *testing.T) {
	if IsRecoverable(CategoryConfig, ReasonTimeout) {
		t.Error("config errors must never be recoverable")
	}
	if !IsRecoverable(CategoryLLM, ReasonRateLimit) {
		t.Error("rate limits are recoverable")
	}
	if !IsRecoverable(CategoryUnknown, "anything") {
		t.Error("unlisted errors default to recoverable")
	}
}
