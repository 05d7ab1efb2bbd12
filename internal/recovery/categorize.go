package recovery

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// knownReasons maps every reason shape the handler understands to its category.
var knownReasons = map[Reason]Category{
	ReasonTimeout:         CategoryLLM,
	ReasonRateLimit:       CategoryLLM,
	ReasonAPIError:        CategoryLLM,
	ReasonInvalidResponse: CategoryLLM,
	"token_limit":         CategoryLLM,
	"model_unavailable":   CategoryLLM,

	ReasonUnexpectedOutcome: CategoryExecution,
	ReasonActionError:       CategoryExecution,
	ReasonSandboxStart:      CategoryExecution,
	ReasonExecutionTimeout:  CategoryExecution,
	"process_killed":        CategoryExecution,
	"workspace_error":       CategoryExecution,

	ReasonInvalidConfig: CategoryConfig,
	ReasonMissingConfig: CategoryConfig,
	"invalid_option":    CategoryConfig,
}

var (
	rateLimitIndicator = regexp.MustCompile(`(?i)(out of.*usage|rate.?limit|usage.?limit|\b429\b|too.?many.?requests)`)
	timeoutIndicator   = regexp.MustCompile(`(?i)(timed? ?out|deadline exceeded)`)
	apiIndicator       = regexp.MustCompile(`(?i)(\b5\d\d\b|api error|service unavailable|bad gateway|overloaded)`)
	configIndicator    = regexp.MustCompile(`(?i)(invalid config|missing config|configuration error|unknown toolchain)`)
	executionIndicator = regexp.MustCompile(`(?i)(executable file not found|exec format error|fork/exec|sandbox|workspace)`)
)

// CategorizeError maps any input to exactly one Category. It is pure and
// total: nil, unrecognized values and unknown reasons all map to
// CategoryUnknown.
func CategorizeError(raw interface{}) Category {
	switch v := raw.(type) {
	case nil:
		return CategoryUnknown
	case *StructuredError:
		if v == nil || !v.Category.IsValid() {
			return CategoryUnknown
		}
		return v.Category
	case Tagged:
		if v.Category.IsValid() {
			return v.Category
		}
		return categorizeReason(v.Reason)
	case Reason:
		return categorizeReason(v)
	case string:
		return categorizeReason(ReasonOf(v))
	case error:
		if se, ok := AsStructured(v); ok {
			return CategorizeError(se)
		}
		var tagged Tagged
		if errors.As(v, &tagged) {
			return CategorizeError(tagged)
		}
		return categorizeReason(ReasonOf(v))
	default:
		return CategoryUnknown
	}
}

func categorizeReason(reason Reason) Category {
	if cat, ok := knownReasons[reason]; ok {
		return cat
	}
	return CategoryUnknown
}

// ReasonOf derives the most specific known Reason for raw. Values that match
// nothing come back verbatim as an opaque Reason (or "unknown" for non-text).
func ReasonOf(raw interface{}) Reason {
	switch v := raw.(type) {
	case nil:
		return "unknown"
	case *StructuredError:
		if v == nil {
			return "unknown"
		}
		return v.Reason
	case Tagged:
		return v.Reason
	case Reason:
		return v
	case string:
		return reasonFromText(v)
	case error:
		if se, ok := AsStructured(v); ok {
			return se.Reason
		}
		var tagged Tagged
		if errors.As(v, &tagged) {
			return tagged.Reason
		}
		if errors.Is(v, context.DeadlineExceeded) {
			return ReasonTimeout
		}
		var execErr *exec.Error
		if errors.As(v, &execErr) || errors.Is(v, exec.ErrNotFound) {
			return ReasonActionError
		}
		var pathErr *os.PathError
		if errors.As(v, &pathErr) {
			return ReasonSandboxStart
		}
		return reasonFromText(v.Error())
	default:
		return "unknown"
	}
}

func reasonFromText(text string) Reason {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	trimmed = strings.TrimPrefix(trimmed, ":")
	if _, ok := knownReasons[Reason(trimmed)]; ok {
		return Reason(trimmed)
	}
	switch {
	case rateLimitIndicator.MatchString(text):
		return ReasonRateLimit
	case timeoutIndicator.MatchString(text):
		return ReasonTimeout
	case configIndicator.MatchString(text):
		return ReasonInvalidConfig
	case executionIndicator.MatchString(text):
		return ReasonActionError
	case apiIndicator.MatchString(text):
		return ReasonAPIError
	}
	return Reason(text)
}
