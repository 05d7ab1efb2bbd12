// Package sandbox runs a candidate program against its test suite in an
// isolated scratch workspace, bounded by a wall-clock timeout and an
// address-space limit.
//
// Test and build failures are reported as data in models.ExecutionResult.
// Only infrastructure failures (the workspace cannot be created, a toolchain
// binary cannot be started) are returned as errors, always as
// *recovery.StructuredError with category execution_error.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/harrison/crucible/internal/metrics"
	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/recovery"
)

// DefaultHardCap bounds any single build or test run when Config.HardCap is unset.
const DefaultHardCap = 5 * time.Minute

// Logger is the subset of the console logger the sandbox uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Config is fixed for the lifetime of a Sandbox.
type Config struct {
	WorkRoot       string        // parent of per-call workspaces; empty = os.TempDir()
	HardCap        time.Duration // upper bound for Options.Timeout and for builds
	Toolchain      Toolchain
	MaxOutputBytes int      // per step; 0 = 1 MiB
	Env            []string // child environment; nil inherits ours
}

// Options are supplied per Execute call.
type Options struct {
	Timeout          time.Duration // clamped to [0, HardCap]; <= 0 means HardCap
	MemoryLimitBytes int64         // 0 = unlimited
	CaptureOutput    bool          // keep raw output in the result
}

// Sandbox executes candidates with one toolchain profile.
type Sandbox struct {
	cfg    Config
	logger Logger
}

// New validates cfg and returns a Sandbox. A nil logger discards diagnostics.
func New(cfg Config, logger Logger) (*Sandbox, error) {
	if err := cfg.Toolchain.Validate(); err != nil {
		return nil, recovery.CreateError(recovery.CategoryConfig, recovery.ReasonInvalidConfig, map[string]interface{}{
			"problem": err.Error(),
		})
	}
	if cfg.HardCap <= 0 {
		cfg.HardCap = DefaultHardCap
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sandbox{cfg: cfg, logger: logger}, nil
}

// Toolchain returns the profile this sandbox runs with.
func (s *Sandbox) Toolchain() Toolchain {
	return s.cfg.Toolchain
}

// ClampTimeout bounds d to the hard cap. Non-positive values select the cap.
func (s *Sandbox) ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 || d > s.cfg.HardCap {
		return s.cfg.HardCap
	}
	return d
}

// Execute materializes candidate and suite, builds them and runs the suite.
// The workspace is removed and every child process is dead by the time
// Execute returns, whatever the outcome.
func (s *Sandbox) Execute(ctx context.Context, candidate, suite string, opts Options) (res models.ExecutionResult, err error) {
	start := time.Now()
	timeout := s.ClampTimeout(opts.Timeout)
	tc := s.cfg.Toolchain

	defer func() {
		if err != nil {
			metrics.SandboxRuns.WithLabelValues(tc.Name, "error").Inc()
			return
		}
		metrics.SandboxRuns.WithLabelValues(tc.Name, string(res.Status)).Inc()
		metrics.SandboxDuration.WithLabelValues(tc.Name).Observe(time.Since(start).Seconds())
	}()

	ws, err := NewWorkspace(s.cfg.WorkRoot)
	if err != nil {
		return models.ExecutionResult{}, infraError("workspace", recovery.ReasonSandboxStart, err)
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			s.logger.Warnf("sandbox: failed to remove workspace %s: %v", ws.Dir, cerr)
		}
	}()

	if err := s.materialize(ws, candidate, suite); err != nil {
		return models.ExecutionResult{}, infraError("workspace", recovery.ReasonSandboxStart, err)
	}

	buildArgs, err := tc.buildArgs(ws.Dir)
	if err != nil {
		return models.ExecutionResult{}, recovery.CreateError(recovery.CategoryConfig, recovery.ReasonInvalidConfig, map[string]interface{}{"problem": err.Error()})
	}
	if buildArgs != nil {
		s.logger.Debugf("sandbox %s: build %v", ws.ID, buildArgs)
		build, err := runProc(ctx, s.spec(ws.Dir, buildArgs, s.cfg.HardCap, opts.MemoryLimitBytes))
		if err != nil {
			return models.ExecutionResult{}, startError("build", buildArgs, err)
		}
		switch {
		case build.timedOut:
			return s.finish(models.ExecutionResult{
				Status: models.ExecTimeout,
				Output: build.output,
				Errors: []models.RawError{timeoutError("build", s.cfg.HardCap)},
			}, start, opts), nil
		case build.exitCode != 0:
			return s.finish(models.ExecutionResult{
				Status:   models.ExecCompilationError,
				Output:   build.output,
				Errors:   CompileDiagnostics(build.output),
				ExitCode: models.IntPtr(1),
			}, start, opts), nil
		}
	}

	testArgs, err := tc.testArgs(ws.Dir)
	if err != nil {
		return models.ExecutionResult{}, recovery.CreateError(recovery.CategoryConfig, recovery.ReasonInvalidConfig, map[string]interface{}{"problem": err.Error()})
	}
	s.logger.Debugf("sandbox %s: test %v (timeout %v)", ws.ID, testArgs, timeout)
	run, err := runProc(ctx, s.spec(ws.Dir, testArgs, timeout, opts.MemoryLimitBytes))
	if err != nil {
		return models.ExecutionResult{}, startError("test", testArgs, err)
	}

	switch {
	case run.timedOut:
		return s.finish(models.ExecutionResult{
			Status: models.ExecTimeout,
			Output: run.output,
			Errors: []models.RawError{timeoutError("test", timeout)},
		}, start, opts), nil
	case run.exitCode == 0:
		return s.finish(models.ExecutionResult{
			Status:   models.ExecSuccess,
			Output:   run.output,
			ExitCode: models.IntPtr(0),
		}, start, opts), nil
	default:
		return s.finish(models.ExecutionResult{
			Status:   models.ExecFailure,
			Output:   run.output,
			Errors:   ParseDiagnostics(run.output, models.RawTestOutput),
			ExitCode: models.IntPtr(run.exitCode),
		}, start, opts), nil
	}
}

func (s *Sandbox) materialize(ws *Workspace, candidate, suite string) error {
	tc := s.cfg.Toolchain
	for _, name := range mapKeys(tc.Files) {
		if err := ws.Write(name, tc.Files[name]); err != nil {
			return err
		}
	}
	if err := ws.Write(tc.CandidateFile, candidate); err != nil {
		return err
	}
	return ws.Write(tc.SuiteFile, suite)
}

func (s *Sandbox) spec(dir string, argv []string, timeout time.Duration, memLimit int64) procSpec {
	return procSpec{
		dir:       dir,
		argv:      argv,
		env:       s.cfg.Env,
		timeout:   timeout,
		memLimit:  memLimit,
		maxOutput: s.cfg.MaxOutputBytes,
	}
}

func (s *Sandbox) finish(res models.ExecutionResult, start time.Time, opts Options) models.ExecutionResult {
	res.DurationMs = time.Since(start).Milliseconds()
	if !opts.CaptureOutput {
		res.Output = ""
	}
	s.logger.Debugf("sandbox: %s in %dms", res.Status, res.DurationMs)
	return res
}

func timeoutError(stage string, limit time.Duration) models.RawError {
	return models.RawError{
		Kind:    models.RawTimeout,
		Message: fmt.Sprintf("%s exceeded the %v time limit and was killed", stage, limit),
	}
}

func infraError(stage string, reason recovery.Reason, err error) *recovery.StructuredError {
	serr := recovery.CreateError(recovery.CategoryExecution, reason, map[string]interface{}{"stage": stage})
	serr.OriginalError = err
	return serr
}

func startError(stage string, argv []string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	reason := recovery.ReasonSandboxStart
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		reason = recovery.ReasonActionError
	}
	serr := infraError(stage, reason, err)
	serr.Context["command"] = argv[0]
	return serr
}

// Bound is a Sandbox with fixed per-call options.
type Bound struct {
	sandbox *Sandbox
	opts    Options
}

// Bind fixes opts for repeated Execute calls.
func (s *Sandbox) Bind(opts Options) *Bound {
	return &Bound{sandbox: s, opts: opts}
}

// Execute runs the bound sandbox.
func (b *Bound) Execute(ctx context.Context, candidate, suite string) (models.ExecutionResult, error) {
	return b.sandbox.Execute(ctx, candidate, suite, b.opts)
}
