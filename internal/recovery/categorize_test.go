package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"reason timeout", ReasonTimeout, CategoryLLM},
		{"reason rate limit", ReasonRateLimit, CategoryLLM},
		{"reason api error", ReasonAPIError, CategoryLLM},
		{"reason invalid response", ReasonInvalidResponse, CategoryLLM},
		{"reason execution timeout", ReasonExecutionTimeout, CategoryExecution},
		{"reason unexpected outcome", ReasonUnexpectedOutcome, CategoryExecution},
		{"reason action error", ReasonActionError, CategoryExecution},
		{"reason invalid config", ReasonInvalidConfig, CategoryConfig},
		{"reason missing config", ReasonMissingConfig, CategoryConfig},
		{"unknown reason", Reason("cosmic_rays"), CategoryUnknown},
		{"tagged wins", Tagged{Category: CategoryExecution, Reason: ReasonTimeout}, CategoryExecution},
		{"tagged invalid category", Tagged{Category: "bogus", Reason: ReasonRateLimit}, CategoryLLM},
		{"string rate limit", "HTTP 429 Too Many Requests", CategoryLLM},
		{"string exact", "invalid_config", CategoryConfig},
		{"string opaque", "something odd happened", CategoryUnknown},
		{"deadline", context.DeadlineExceeded, CategoryLLM},
		{"exec not found", &exec.Error{Name: "gcc", Err: exec.ErrNotFound}, CategoryExecution},
		{"path error", &os.PathError{Op: "mkdir", Path: "/nope", Err: os.ErrPermission}, CategoryExecution},
		{"wrapped tagged", fmt.Errorf("outer: %w", Tagged{Category: CategoryConfig, Reason: "x"}), CategoryConfig},
		{"structured", CreateError(CategoryExecution, ReasonActionError, nil), CategoryExecution},
		{"int", 42, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.raw); got != tt.want {
				t.Errorf("CategorizeError(%v) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCategorizeError_Deterministic(t *testing.T) {
	inputs := []interface{}{ReasonTimeout, "overloaded", errors.New("bad gateway"), nil}
	for _, in := range inputs {
		first := CategorizeError(in)
		for i := 0; i < 5; i++ {
			if got := CategorizeError(in); got != first {
				t.Fatalf("CategorizeError(%v) changed from %s to %s", in, first, got)
			}
		}
	}
}

func TestReasonOf_Opaque(t *testing.T) {
	if got := ReasonOf("the moon is full"); got != Reason("the moon is full") {
		t.Errorf("expected verbatim reason, got %q", got)
	}
	if got := ReasonOf(errors.New("503 service unavailable")); got != ReasonAPIError {
		t.Errorf("expected api_error, got %q", got)
	}
}

func TestCreateError(t *testing.T) {
	in := map[string]interface{}{"stage": "compile"}
	err := CreateError(CategoryExecution, ReasonUnexpectedOutcome, in)
	in["stage"] = "mutated"

	if err.Context["stage"] != "compile" {
		t.Errorf("context was not copied: %v", err.Context)
	}
	if err.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if !err.Recoverable {
		t.Error("expected execution/unexpected_outcome to be recoverable")
	}
	if err.RecoveryAttempted || err.RecoveryStrategy != "" {
		t.Error("fresh error must not carry recovery bookkeeping")
	}

	cfg := CreateError(CategoryConfig, ReasonInvalidConfig, nil)
	if cfg.Recoverable {
		t.Error("config errors are never recoverable")
	}

	bogus := CreateError("bogus", "x", nil)
	if bogus.Category != CategoryUnknown {
		t.Errorf("invalid category should normalize to unknown, got %s", bogus.Category)
	}
}

func TestStructuredError_ErrorString(t *testing.T) {
	err := CreateError(CategoryLLM, ReasonRateLimit, map[string]interface{}{"b": 2, "a": 1})
	err.OriginalError = errors.New("429")
	want := "llm_error: rate_limit (a=1, b=2): 429"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
	orig := CreateError(CategoryLLM, ReasonTimeout, nil)
	if Wrap(fmt.Errorf("ctx: %w", orig), nil) != orig {
		t.Error("Wrap should return the structured error already in the chain")
	}
	w := Wrap(context.DeadlineExceeded, map[string]interface{}{"op": "invoke"})
	if w.Category != CategoryLLM || w.Reason != ReasonTimeout {
		t.Errorf("unexpected wrap result: %v", w)
	}
	if !errors.Is(w, context.DeadlineExceeded) {
		t.Error("wrapped error should unwrap to the original")
	}
}
