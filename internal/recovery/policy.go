package recovery

// Strategy names a recovery action.
type Strategy string

const (
	StrategyRetry           Strategy = "retry"
	StrategyFallbackSimpler Strategy = "fallback_simpler"
	StrategyFallbackDirect  Strategy = "fallback_direct"
	StrategySkipContinue    Strategy = "skip_continue"
	StrategyFailFast        Strategy = "fail_fast"
)

// IsValid reports whether s is one of the five strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyRetry, StrategyFallbackSimpler, StrategyFallbackDirect, StrategySkipContinue, StrategyFailFast:
		return true
	default:
		return false
	}
}

type policyKey struct {
	category Category
	reason   Reason
}

// recoverableTable lists the explicit entries; config errors are never
// recoverable and anything not listed defaults to recoverable.
var recoverableTable = map[policyKey]bool{
	{CategoryLLM, ReasonTimeout}:                 true,
	{CategoryLLM, ReasonRateLimit}:               true,
	{CategoryLLM, ReasonAPIError}:                true,
	{CategoryExecution, ReasonUnexpectedOutcome}: true,
	{CategoryExecution, ReasonActionError}:       true,
}

// IsRecoverable applies the fixed recoverability policy.
func IsRecoverable(category Category, reason Reason) bool {
	if category == CategoryConfig {
		return false
	}
	if v, ok := recoverableTable[policyKey{category, reason}]; ok {
		return v
	}
	return true
}

// strategyTable is keyed on (category, reason); categoryDefaults covers the
// reasons a category does not list explicitly.
var strategyTable = map[policyKey]Strategy{
	{CategoryLLM, ReasonTimeout}:         StrategyRetry,
	{CategoryLLM, ReasonRateLimit}:       StrategyRetry,
	{CategoryLLM, ReasonAPIError}:        StrategyFallbackSimpler,
	{CategoryLLM, ReasonInvalidResponse}: StrategyFallbackSimpler,

	{CategoryExecution, ReasonUnexpectedOutcome}: StrategyRetry,
	{CategoryExecution, ReasonSandboxStart}:      StrategyRetry,
	{CategoryExecution, ReasonActionError}:       StrategyFallbackDirect,
	{CategoryExecution, ReasonExecutionTimeout}:  StrategySkipContinue,
}

var categoryDefaults = map[Category]Strategy{
	CategoryLLM:       StrategyFallbackDirect,
	CategoryExecution: StrategySkipContinue,
	CategoryConfig:    StrategyFailFast,
}

// SelectRecoveryStrategy picks the strategy for err from the decision table.
// A non-empty, valid override always wins.
func SelectRecoveryStrategy(err *StructuredError, override ...Strategy) Strategy {
	for _, s := range override {
		if s.IsValid() {
			return s
		}
	}
	if err == nil {
		return StrategyFailFast
	}
	if err.Category == CategoryConfig {
		return StrategyFailFast
	}
	if s, ok := strategyTable[policyKey{err.Category, err.Reason}]; ok {
		return s
	}
	if s, ok := categoryDefaults[err.Category]; ok {
		return s
	}
	if err.Recoverable {
		return StrategySkipContinue
	}
	return StrategyFailFast
}
