// Package recovery implements the retry and recovery framework shared by the
// sandbox, the analyzer and the refinement loop.
//
// Errors crossing layer boundaries are carried as *StructuredError, which
// records a category from a closed taxonomy, an opaque reason, free-form
// context and the bookkeeping needed by recovery handlers. Recovery strategy
// selection is table driven and deterministic for a given (category, reason).
package recovery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category is the top-level error taxonomy.
type Category string

const (
	CategoryLLM       Category = "llm_error"
	CategoryExecution Category = "execution_error"
	CategoryConfig    Category = "config_error"
	CategoryUnknown   Category = "unknown_error"
)

// IsValid reports whether c is one of the four known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryLLM, CategoryExecution, CategoryConfig, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Reason is an opaque, comparable description of why an operation failed.
// The constants below are the shapes the policy tables know about; any other
// value is legal and falls through to the defaults.
type Reason string

const (
	ReasonTimeout           Reason = "timeout"
	ReasonRateLimit         Reason = "rate_limit"
	ReasonAPIError          Reason = "api_error"
	ReasonInvalidResponse   Reason = "invalid_response"
	ReasonUnexpectedOutcome Reason = "unexpected_outcome"
	ReasonActionError       Reason = "action_error"
	ReasonSandboxStart      Reason = "sandbox_start_failed"
	ReasonExecutionTimeout  Reason = "execution_timeout"
	ReasonInvalidConfig     Reason = "invalid_config"
	ReasonMissingConfig     Reason = "missing_config"
	ReasonMaxRetries        Reason = "max_retries_exceeded"
	ReasonMissingHandler    Reason = "missing_recovery_handler"
	ReasonPanic             Reason = "panic"
)

// Tagged is an explicit (category, reason) pair. CategorizeError trusts the
// category of a Tagged value when it is valid.
type Tagged struct {
	Category Category
	Reason   Reason
}

// Error implements error so a Tagged value can be returned from operations.
func (t Tagged) Error() string {
	return fmt.Sprintf("%s: %s", t.Category, t.Reason)
}

// StructuredError is the cross-layer error value. It is created once by
// CreateError and then threaded through recovery handlers; handlers only ever
// set RecoveryAttempted and RecoveryStrategy.
type StructuredError struct {
	Category          Category
	Reason            Reason
	Context           map[string]interface{}
	Timestamp         time.Time
	Recoverable       bool
	RecoveryAttempted bool
	RecoveryStrategy  Strategy // empty until a handler picks one
	OriginalError     error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Category, e.Reason))
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}
	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}
	return sb.String()
}

// Unwrap exposes the original error to errors.Is and errors.As.
func (e *StructuredError) Unwrap() error {
	return e.OriginalError
}

// Attempts returns the "attempts" context value, or 0 when absent.
func (e *StructuredError) Attempts() int {
	if e == nil || e.Context == nil {
		return 0
	}
	if n, ok := e.Context["attempts"].(int); ok {
		return n
	}
	return 0
}

// markAttempted returns a shallow copy flagged as having gone through recovery.
func (e *StructuredError) markAttempted(strategy Strategy) *StructuredError {
	cp := *e
	cp.RecoveryAttempted = true
	if cp.RecoveryStrategy == "" {
		cp.RecoveryStrategy = strategy
	}
	return &cp
}

// CreateError builds a StructuredError stamped with the current time. The
// recoverable flag comes from the fixed policy table in policy.go.
func CreateError(category Category, reason Reason, context map[string]interface{}) *StructuredError {
	if !category.IsValid() {
		category = CategoryUnknown
	}
	ctx := make(map[string]interface{}, len(context))
	for k, v := range context {
		ctx[k] = v
	}
	return &StructuredError{
		Category:    category,
		Reason:      reason,
		Context:     ctx,
		Timestamp:   time.Now(),
		Recoverable: IsRecoverable(category, reason),
	}
}

// Wrap converts any error into a StructuredError, keeping err as the
// original error. A StructuredError is returned unchanged.
func Wrap(err error, context map[string]interface{}) *StructuredError {
	if err == nil {
		return nil
	}
	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}
	serr := CreateError(CategorizeError(err), ReasonOf(err), context)
	serr.OriginalError = err
	return serr
}

// AsStructured extracts a StructuredError from err's chain.
func AsStructured(err error) (*StructuredError, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
