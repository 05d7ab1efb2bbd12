package models

// FailureCategory classifies a single detected failure.
type FailureCategory string

// Failure categories, listed in matching priority order.
const (
	CategoryCompilation FailureCategory = "compilation"
	CategorySyntax      FailureCategory = "syntax"
	CategoryType        FailureCategory = "type"
	CategoryLogic       FailureCategory = "logic"
	CategoryEdgeCase    FailureCategory = "edge_case"
	CategoryTimeout     FailureCategory = "timeout"
	CategoryRuntime     FailureCategory = "runtime"
)

// FailureCategories is the fixed priority order used when matching keywords.
var FailureCategories = []FailureCategory{
	CategoryCompilation,
	CategorySyntax,
	CategoryType,
	CategoryLogic,
	CategoryEdgeCase,
	CategoryTimeout,
	CategoryRuntime,
}

// IsValid reports whether c is a known category.
func (c FailureCategory) IsValid() bool {
	for _, known := range FailureCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Location points at the source position a failure was reported against.
type Location struct {
	File string
	Line int
}

// FailureAnalysis is the root-caused view of one failure.
type FailureAnalysis struct {
	Category         FailureCategory
	Message          string
	Location         *Location // nil when the runner gave no position
	RootCause        string
	CorrectionPrompt string // fed back to the generator verbatim
}

// AnalysisStatus is the verdict of one analysis pass.
type AnalysisStatus string

const (
	AnalysisPass  AnalysisStatus = "pass"
	AnalysisFail  AnalysisStatus = "fail"
	AnalysisError AnalysisStatus = "error"
)

// AnalysisResult aggregates all failures of one ExecutionResult.
//
// PassRate == 1.0 iff Status == AnalysisPass iff len(Failures) == 0.
// For pass and fail, TotalTests == PassedTests + FailedTests.
type AnalysisResult struct {
	Status      AnalysisStatus
	TotalTests  int
	PassedTests int
	FailedTests int
	Failures    []FailureAnalysis
	Suggestions []string // one per distinct category, in first-seen order
	PassRate    float64
}

// CategoryCounts tallies failures per category.
func (a AnalysisResult) CategoryCounts() map[FailureCategory]int {
	counts := make(map[FailureCategory]int, len(a.Failures))
	for _, f := range a.Failures {
		counts[f.Category]++
	}
	return counts
}

// PassRateOf computes passed/total, returning 0 for an empty suite.
func PassRateOf(passed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(passed) / float64(total)
}
