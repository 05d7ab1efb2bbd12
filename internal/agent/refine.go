package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/recovery"
)

// Logger is the subset of the console logger the agent uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Prompter produces agent replies. *Invoker is the production implementation.
type Prompter interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Refiner adapts a Prompter into the refinement loop's refine step. Agent
// failures go through the recovery handler: transient ones are retried,
// the rest fall back to leaving the candidate unchanged. Only fail-fast
// errors (configuration problems) and cancellation end the loop.
type Refiner struct {
	prompter     Prompter
	language     string
	handler      *recovery.Handler
	retry        recovery.RetryConfig
	retryOptions []recovery.RetryOption
	logger       Logger
}

// Option configures a Refiner.
type Option func(*Refiner)

// WithRetryConfig sets the backoff policy for transient agent failures.
func WithRetryConfig(cfg recovery.RetryConfig, opts ...recovery.RetryOption) Option {
	return func(r *Refiner) {
		r.retry = cfg
		r.retryOptions = opts
	}
}

// WithLogger routes agent diagnostics to l.
func WithLogger(l Logger) Option {
	return func(r *Refiner) { r.logger = l }
}

// NewRefiner creates a Refiner that asks p for fixes to code written in language.
func NewRefiner(p Prompter, language string, opts ...Option) *Refiner {
	r := &Refiner{
		prompter: p,
		language: language,
		retry:    recovery.DefaultRetryConfig(),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handler = recovery.NewHandler(r.logger)
	return r
}

// Refine has the shape of refiner.RefineFunc.
func (r *Refiner) Refine(ctx context.Context, code string, analysis models.AnalysisResult) (string, error) {
	prompt := BuildPrompt(code, r.language, analysis)

	ask := func() (interface{}, error) {
		reply, err := r.prompter.Invoke(ctx, prompt)
		if err != nil {
			return nil, err
		}
		next := ExtractCode(reply, r.language)
		if next == "" {
			return nil, recovery.CreateError(recovery.CategoryLLM, recovery.ReasonInvalidResponse, nil)
		}
		return next, nil
	}

	v, err := ask()
	if err == nil {
		return v.(string), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	serr := recovery.Wrap(err, nil)
	r.logger.Warnf("agent failed: %v", serr)

	keep := func() (interface{}, error) { return code, nil }
	v, err = r.handler.HandleError(ctx, serr, map[string]interface{}{"language": r.language}, recovery.Options{
		RetryFn:      ask,
		RetryConfig:  r.retry,
		RetryOptions: r.retryOptions,
		FallbackFn:   keep,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		herr, _ := recovery.AsStructured(err)
		if herr == nil || herr.RecoveryStrategy == recovery.StrategyFailFast {
			return "", fmt.Errorf("agent: %w", err)
		}
		r.logger.Warnf("agent recovery (%s) failed, keeping the current candidate: %v", herr.RecoveryStrategy, err)
		return code, nil
	}

	switch next := v.(type) {
	case string:
		return next, nil
	case recovery.SkipResult:
		return code, nil
	default:
		return "", errors.New("agent: unexpected recovery result")
	}
}
