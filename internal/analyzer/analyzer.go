// Package analyzer turns raw sandbox results into categorized, root-caused
// failure reports with correction prompts for the next generation attempt.
package analyzer

import (
	"fmt"

	"github.com/harrison/crucible/internal/metrics"
	"github.com/harrison/crucible/internal/models"
)

// Logger is the subset of the console logger the analyzer uses.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Analyzer is stateless; one instance can serve any number of results.
type Analyzer struct {
	logger Logger
}

// New creates an Analyzer. A nil logger discards diagnostics.
func New(logger Logger) *Analyzer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Analyzer{logger: logger}
}

// Analyze dispatches on res.Status. Test failures are data: an error is only
// returned for a status outside the known set, together with an error-status
// result that still satisfies the non-pass invariants.
func (a *Analyzer) Analyze(res models.ExecutionResult) (models.AnalysisResult, error) {
	var out models.AnalysisResult
	switch res.Status {
	case models.ExecSuccess:
		out = a.analyzeSuccess(res)
	case models.ExecFailure:
		out = a.analyzeFailure(res)
	case models.ExecTimeout:
		out = a.analyzeTimeout(res)
	case models.ExecCompilationError:
		out = a.analyzeCompilation(res)
	default:
		out = errorResult(fmt.Sprintf("unrecognized execution status %q", res.Status))
		return out, fmt.Errorf("analyze: unknown execution status %q", res.Status)
	}

	for _, f := range out.Failures {
		metrics.FailuresAnalyzed.WithLabelValues(string(f.Category)).Inc()
	}
	a.logger.Debugf("analysis: %s %d/%d passed, %d failure(s)", out.Status, out.PassedTests, out.TotalTests, len(out.Failures))
	return out, nil
}

func (a *Analyzer) analyzeSuccess(res models.ExecutionResult) models.AnalysisResult {
	counts := parseCounts(res.Output)
	total := counts.total
	if !counts.ok || total == 0 {
		// A clean exit with no recognizable summary counts as one passing suite.
		total = 1
	}
	return models.AnalysisResult{
		Status:      models.AnalysisPass,
		TotalTests:  total,
		PassedTests: total,
		FailedTests: 0,
		Failures:    []models.FailureAnalysis{},
		Suggestions: []string{passingSuggestion},
		PassRate:    1.0,
	}
}

func (a *Analyzer) analyzeFailure(res models.ExecutionResult) models.AnalysisResult {
	recs := extractFailures(res.Output)
	if len(recs) == 0 {
		recs = fromRawErrors(res.Errors)
	}
	if len(recs) == 0 {
		msg := tail(res.Output, 5)
		if msg == "" {
			msg = fmt.Sprintf("test run exited with code %d", res.ExitCodeOr(-1))
		}
		recs = []failureRecord{{message: msg, generic: true}}
	}

	failures := make([]models.FailureAnalysis, 0, len(recs))
	for _, r := range recs {
		failures = append(failures, buildFailure(Categorize(r.text()), r.text(), r.location))
	}

	counts := parseCounts(res.Output)
	passed, failed := 0, len(failures)
	if counts.ok {
		passed, failed = counts.passed, counts.failed
	}
	if failed == 0 {
		failed = len(failures)
	}

	return models.AnalysisResult{
		Status:      models.AnalysisFail,
		TotalTests:  passed + failed,
		PassedTests: passed,
		FailedTests: failed,
		Failures:    failures,
		Suggestions: suggestionsFor(failures),
		PassRate:    models.PassRateOf(passed, passed+failed),
	}
}

func (a *Analyzer) analyzeTimeout(res models.ExecutionResult) models.AnalysisResult {
	msg := "execution exceeded the time limit"
	if len(res.Errors) > 0 && res.Errors[0].Message != "" {
		msg = res.Errors[0].Message
	}
	total := 1
	if counts := parseCounts(res.Output); counts.ok && counts.total > total {
		total = counts.total
	}
	return models.AnalysisResult{
		Status:      models.AnalysisFail,
		TotalTests:  total,
		PassedTests: 0,
		FailedTests: total,
		Failures:    []models.FailureAnalysis{buildFailure(models.CategoryTimeout, msg, nil)},
		Suggestions: append([]string(nil), timeoutSuggestions...),
		PassRate:    0.0,
	}
}

func (a *Analyzer) analyzeCompilation(res models.ExecutionResult) models.AnalysisResult {
	diags := res.Errors
	if len(diags) == 0 {
		msg := tail(res.Output, 10)
		if msg == "" {
			msg = "build failed"
		}
		diags = []models.RawError{{Kind: models.RawDiagnostic, Message: msg}}
	}

	failures := make([]models.FailureAnalysis, 0, len(diags))
	for _, d := range diags {
		failures = append(failures, buildFailure(models.CategoryCompilation, d.Message, rawLocation(d)))
	}
	return models.AnalysisResult{
		Status:      models.AnalysisFail,
		TotalTests:  len(failures),
		PassedTests: 0,
		FailedTests: len(failures),
		Failures:    failures,
		Suggestions: suggestionsFor(failures),
		PassRate:    0.0,
	}
}

func buildFailure(cat models.FailureCategory, msg string, loc *models.Location) models.FailureAnalysis {
	f := models.FailureAnalysis{
		Category:  cat,
		Message:   msg,
		Location:  loc,
		RootCause: RootCause(cat),
	}
	f.CorrectionPrompt = CorrectionPrompt(f)
	return f
}

func errorResult(msg string) models.AnalysisResult {
	failures := []models.FailureAnalysis{buildFailure(models.CategoryRuntime, msg, nil)}
	return models.AnalysisResult{
		Status:      models.AnalysisError,
		Failures:    failures,
		Suggestions: suggestionsFor(failures),
		PassRate:    0.0,
	}
}
