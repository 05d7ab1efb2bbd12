package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/shlex"
)

// ErrEvalTimeout is returned when an expression does not finish in time.
var ErrEvalTimeout = errors.New("evaluation timed out")

// EvalError reports an expression that ran but failed.
type EvalError struct {
	ExitCode int
	Detail   string
}

func (e *EvalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("evaluation failed with exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("evaluation failed with exit code %d: %s", e.ExitCode, e.Detail)
}

// DefaultEvaluatorCommand prints the value of a Python expression passed as
// the final argument.
const DefaultEvaluatorCommand = `python3 -c "import sys; print(eval(sys.argv[1]))"`

// Evaluator runs single expressions through an interpreter command with the
// same timeout and kill guarantees as Sandbox.Execute, without a build step.
type Evaluator struct {
	argv      []string
	workRoot  string
	hardCap   time.Duration
	maxOutput int
}

// NewEvaluator parses command; the expression is appended as its last argument.
func NewEvaluator(command, workRoot string, hardCap time.Duration) (*Evaluator, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultEvaluatorCommand
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse evaluator command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("evaluator command is empty")
	}
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}
	return &Evaluator{argv: argv, workRoot: workRoot, hardCap: hardCap, maxOutput: 64 << 10}, nil
}

// Evaluate runs expr and returns its trimmed output. Failures are ErrEvalTimeout,
// *EvalError, or an infrastructure error when the interpreter cannot start.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, timeout time.Duration) (string, error) {
	if timeout <= 0 || timeout > e.hardCap {
		timeout = e.hardCap
	}
	ws, err := NewWorkspace(e.workRoot)
	if err != nil {
		return "", infraError("workspace", "workspace_error", err)
	}
	defer ws.Cleanup()

	argv := append(append([]string(nil), e.argv...), expr)
	res, err := runProc(ctx, procSpec{dir: ws.Dir, argv: argv, timeout: timeout, maxOutput: e.maxOutput})
	if err != nil {
		return "", startError("eval", argv, err)
	}
	if res.timedOut {
		return "", ErrEvalTimeout
	}
	out := strings.TrimSpace(res.output)
	if res.exitCode != 0 {
		return "", &EvalError{ExitCode: res.exitCode, Detail: lastLine(out)}
	}
	return out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
