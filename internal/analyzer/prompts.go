package analyzer

import (
	"fmt"
	"strings"

	"github.com/harrison/crucible/internal/models"
)

var rootCauses = map[models.FailureCategory]string{
	models.CategoryCompilation: "The code does not build: an identifier, import or declaration it relies on is missing, misspelled or out of scope.",
	models.CategorySyntax:      "The source cannot be parsed because of a syntax error such as an unbalanced bracket, a missing delimiter or a misplaced keyword.",
	models.CategoryType:        "A value is used with an incompatible type, or a function is called with arguments of the wrong type or arity.",
	models.CategoryLogic:       "The implementation returns a different result than the test expects; the algorithm or one of its conditions is wrong.",
	models.CategoryEdgeCase:    "The implementation does not handle a boundary input such as an empty collection, a nil or zero value, or an out-of-range index.",
	models.CategoryTimeout:     "Execution did not finish within the time limit; the code most likely loops forever or uses an algorithm that is too slow for the input size.",
	models.CategoryRuntime:     "The code crashed at runtime with an unhandled error, exception or panic.",
}

var categoryAdvice = map[models.FailureCategory]string{
	models.CategoryCompilation: "check identifiers, imports and declarations",
	models.CategorySyntax:      "check brackets, delimiters and keywords",
	models.CategoryType:        "check argument and return types at each call site",
	models.CategoryLogic:       "re-check the algorithm against the expected values in the failing assertions",
	models.CategoryEdgeCase:    "add explicit handling for empty, nil, zero and out-of-range inputs",
	models.CategoryTimeout:     "look for unbounded loops or unnecessary repeated work",
	models.CategoryRuntime:     "guard the failing operation and handle its error path",
}

// RootCause returns the canned root-cause text for category.
func RootCause(category models.FailureCategory) string {
	if rc, ok := rootCauses[category]; ok {
		return rc
	}
	return rootCauses[models.CategoryRuntime]
}

// CorrectionPrompt renders the guidance handed to the generator for one failure.
func CorrectionPrompt(f models.FailureAnalysis) string {
	location := "unknown"
	if f.Location != nil {
		location = f.Location.File
		if f.Location.Line > 0 {
			location = fmt.Sprintf("%s:%d", f.Location.File, f.Location.Line)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fix the following %s failure.\n\n", f.Category)
	fmt.Fprintf(&sb, "Error: %s\n", f.Message)
	fmt.Fprintf(&sb, "Location: %s\n", location)
	fmt.Fprintf(&sb, "Root cause: %s\n\n", f.RootCause)
	sb.WriteString("Instructions:\n")
	sb.WriteString("1. Fix the root cause, not just the symptom.\n")
	sb.WriteString("2. Make the failing test case pass.\n")
	sb.WriteString("3. Keep every currently passing test passing.\n")
	sb.WriteString("4. Guard against regressions in related code paths.\n")
	return sb.String()
}

// suggestionsFor emits one line per distinct category in first-seen order.
func suggestionsFor(failures []models.FailureAnalysis) []string {
	counts := make(map[models.FailureCategory]int)
	var order []models.FailureCategory
	for _, f := range failures {
		if counts[f.Category] == 0 {
			order = append(order, f.Category)
		}
		counts[f.Category]++
	}

	out := make([]string, 0, len(order))
	for _, cat := range order {
		out = append(out, fmt.Sprintf("%d %s failure(s): %s", counts[cat], cat, categoryAdvice[cat]))
	}
	return out
}

var timeoutSuggestions = []string{
	"1 timeout failure(s): look for unbounded loops or unnecessary repeated work",
	"Reduce algorithmic complexity of the hot path (avoid nested scans, cache repeated lookups)",
	"Make sure every loop and recursion has a reachable termination condition",
}

const passingSuggestion = "All tests passing"
