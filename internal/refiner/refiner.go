// Package refiner drives the generate, test and refine loop until the
// candidate passes, plateaus at a high pass rate, or runs out of iterations.
package refiner

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/crucible/internal/metrics"
	"github.com/harrison/crucible/internal/models"
)

// ErrMaxIterationsExceeded is carried by an Exhausted outcome.
var ErrMaxIterationsExceeded = errors.New("max iterations exceeded")

// Executor runs a candidate against its suite. Only infrastructure failures
// are returned as errors; test failures are part of the result.
type Executor interface {
	Execute(ctx context.Context, candidate, suite string) (models.ExecutionResult, error)
}

// Analyzer turns an execution result into a failure report.
type Analyzer interface {
	Analyze(res models.ExecutionResult) (models.AnalysisResult, error)
}

// RefineFunc produces the next candidate from the current one and the
// analysis of its last run. It must be safe to call repeatedly.
type RefineFunc func(ctx context.Context, code string, analysis models.AnalysisResult) (string, error)

// Observer is notified after every non-terminal iteration.
type Observer func(iteration int, result models.RefinementResult)

// Logger is the subset of the console logger the refiner uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}

// OutcomeKind is the terminal state of a refinement loop.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeExhausted      OutcomeKind = "exhausted"
)

// Outcome is the typed result of Refine.
type Outcome struct {
	Kind      OutcomeKind
	Code      string         // the last candidate that was tested
	Iteration int            // iteration at which the loop stopped
	PassRate  float64        // pass rate of that iteration
	History   models.History // newest-first
	Err       error          // ErrMaxIterationsExceeded for exhausted, nil otherwise
}

// Config holds the loop policy. Thresholds are compared with >=.
type Config struct {
	MaxIterations        int     `yaml:"max_iterations"`
	PassThreshold        float64 `yaml:"pass_threshold"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	PlateauWidth         float64 `yaml:"plateau_width"`
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        5,
		PassThreshold:        1.0,
		ConvergenceThreshold: 0.95,
		PlateauWidth:         0.05,
	}
}

// Validate checks the policy bounds.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.PassThreshold <= 0 || c.PassThreshold > 1 {
		return fmt.Errorf("pass_threshold must be in (0, 1], got %v", c.PassThreshold)
	}
	if c.ConvergenceThreshold <= 0 || c.ConvergenceThreshold > 1 {
		return fmt.Errorf("convergence_threshold must be in (0, 1], got %v", c.ConvergenceThreshold)
	}
	if c.PlateauWidth <= 0 || c.PlateauWidth > 1 {
		return fmt.Errorf("plateau_width must be in (0, 1], got %v", c.PlateauWidth)
	}
	return nil
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithRefineFunc sets the generator used between iterations.
func WithRefineFunc(fn RefineFunc) Option {
	return func(r *Refiner) { r.refine = fn }
}

// WithObserver registers a per-iteration callback.
func WithObserver(fn Observer) Option {
	return func(r *Refiner) { r.observer = fn }
}

// WithLogger routes loop diagnostics to l.
func WithLogger(l Logger) Option {
	return func(r *Refiner) { r.logger = l }
}

// Refiner owns one refinement policy and its collaborators.
type Refiner struct {
	cfg      Config
	executor Executor
	analyzer Analyzer
	refine   RefineFunc
	observer Observer
	logger   Logger
}

// New creates a Refiner. Without WithRefineFunc the candidate is passed
// through unchanged between iterations.
func New(cfg Config, executor Executor, analyzer Analyzer, opts ...Option) (*Refiner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if executor == nil || analyzer == nil {
		return nil, errors.New("refiner requires an executor and an analyzer")
	}
	r := &Refiner{cfg: cfg, executor: executor, analyzer: analyzer}
	for _, opt := range opts {
		opt(r)
	}
	if r.refine == nil {
		r.refine = passThrough
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	return r, nil
}

func passThrough(_ context.Context, code string, _ models.AnalysisResult) (string, error) {
	return code, nil
}

// Refine runs the loop. Infrastructure errors from the executor, the analyzer
// or the refine function end the loop immediately and are returned as errors;
// everything else ends in exactly one of the three outcome kinds.
func (r *Refiner) Refine(ctx context.Context, code, suite string) (Outcome, error) {
	var history models.History
	var previous *models.AnalysisResult

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		res, err := r.executor.Execute(ctx, code, suite)
		if err != nil {
			return Outcome{}, fmt.Errorf("iteration %d: execute: %w", iteration, err)
		}
		analysis, err := r.analyzer.Analyze(res)
		if err != nil {
			return Outcome{}, fmt.Errorf("iteration %d: analyze: %w", iteration, err)
		}

		entry := models.RefinementResult{
			Code:         code,
			Iteration:    iteration,
			PassRate:     analysis.PassRate,
			Improvements: TrackImprovements(analysis, previous),
			Analysis:     analysis,
		}
		history = history.Prepend(entry)
		metrics.LastPassRate.Set(analysis.PassRate)
		r.logger.Infof("iteration %d/%d: %.0f%% passing (%d/%d)", iteration, r.cfg.MaxIterations,
			analysis.PassRate*100, analysis.PassedTests, analysis.TotalTests)

		if analysis.PassRate >= r.cfg.PassThreshold {
			return r.finish(OutcomeSuccess, entry, history, nil), nil
		}
		if analysis.PassRate >= r.cfg.ConvergenceThreshold && DetectConvergence(history, r.cfg.PlateauWidth) {
			return r.finish(OutcomePartialSuccess, entry, history, nil), nil
		}
		if iteration >= r.cfg.MaxIterations {
			return r.finish(OutcomeExhausted, entry, history, ErrMaxIterationsExceeded), nil
		}

		if r.observer != nil {
			r.observer(iteration, entry)
		}

		next, err := r.refine(ctx, code, analysis)
		if err != nil {
			return Outcome{}, fmt.Errorf("iteration %d: refine: %w", iteration, err)
		}
		if len(analysis.Failures) > 0 {
			r.logger.Debugf("iteration %d: applied correction for %s failure", iteration, analysis.Failures[0].Category)
		}
		code = next
		previous = &history[0].Analysis
	}
}

func (r *Refiner) finish(kind OutcomeKind, last models.RefinementResult, history models.History, err error) Outcome {
	metrics.RefinementOutcomes.WithLabelValues(string(kind)).Inc()
	metrics.RefinementIterations.Observe(float64(last.Iteration))
	return Outcome{
		Kind:      kind,
		Code:      last.Code,
		Iteration: last.Iteration,
		PassRate:  last.PassRate,
		History:   history,
		Err:       err,
	}
}
