package models

import "fmt"

// ExecutionStatus is the raw outcome of one sandbox call.
type ExecutionStatus string

// Execution status constants
const (
	ExecSuccess          ExecutionStatus = "success"           // Build ok, tests exited 0
	ExecFailure          ExecutionStatus = "failure"           // Build ok, tests exited non-zero
	ExecTimeout          ExecutionStatus = "timeout"           // Test run killed at the deadline
	ExecCompilationError ExecutionStatus = "compilation_error" // Build failed, tests never ran
)

// IsValid reports whether s is one of the known execution statuses.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecSuccess, ExecFailure, ExecTimeout, ExecCompilationError:
		return true
	default:
		return false
	}
}

// RawErrorKind tags where a raw error record came from.
type RawErrorKind string

const (
	RawDiagnostic RawErrorKind = "diagnostic" // compiler/build diagnostic
	RawTestOutput RawErrorKind = "test"       // line or block from the test runner
	RawTimeout    RawErrorKind = "timeout"    // synthetic record for a killed run
)

// RawError is one unprocessed error record extracted from sandbox output.
type RawError struct {
	Kind    RawErrorKind
	Message string
	File    string // empty when the tool did not report a location
	Line    int    // 0 when unknown
	Column  int    // 0 when unknown
}

// Location renders "file:line[:col]" or "" when the record has no file.
func (e RawError) Location() string {
	if e.File == "" {
		return ""
	}
	if e.Line <= 0 {
		return e.File
	}
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}

// ExecutionResult is produced exactly once per sandbox call and is never
// mutated afterwards. ResultAnalyzer is its only consumer.
type ExecutionResult struct {
	Status     ExecutionStatus
	Output     string     // combined stdout/stderr of the step that decided the status
	Errors     []RawError // ordered as they appeared in Output
	DurationMs int64      // wall clock for build + run
	ExitCode   *int       // nil when the child never produced an exit status
}

// ExitCodeOr returns the exit code or def when none was recorded.
func (r ExecutionResult) ExitCodeOr(def int) int {
	if r.ExitCode == nil {
		return def
	}
	return *r.ExitCode
}

// IntPtr is a small helper for building ExecutionResult literals.
func IntPtr(v int) *int {
	return &v
}
