// Package agent drives an external code-generation CLI as the refine step
// of the refinement loop.
//
// The agent receives a prompt on stdin (the current candidate plus the
// correction prompts of the last analysis) and answers in markdown; the
// first fenced code block of the answer becomes the next candidate.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/harrison/crucible/internal/recovery"
)

// DefaultCommand is the agent command line used when none is configured.
const DefaultCommand = "claude -p"

// Invoker runs the agent CLI. Create once, use many times.
type Invoker struct {
	// Command is the agent command line, split with shell quoting rules.
	Command string

	// Timeout bounds one invocation (0 = only the caller's context).
	Timeout time.Duration

	// Env is the child environment; nil inherits ours.
	Env []string
}

// NewInvoker creates an Invoker for command, defaulting to DefaultCommand.
func NewInvoker(command string, timeout time.Duration) *Invoker {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	return &Invoker{Command: command, Timeout: timeout}
}

// Invoke sends prompt on stdin and returns stdout. Every failure is a
// *recovery.StructuredError: a missing binary or unparsable command is a
// config_error, everything else an llm_error whose reason is derived from
// the process output (rate_limit, timeout, api_error, invalid_response).
func (inv *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	argv, err := shlex.Split(inv.Command)
	if err != nil || len(argv) == 0 {
		return "", recovery.CreateError(recovery.CategoryConfig, recovery.ReasonInvalidConfig, map[string]interface{}{
			"problem": fmt.Sprintf("invalid agent command %q", inv.Command),
		})
	}

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(prompt)
	if inv.Env != nil {
		cmd.Env = inv.Env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	errCtx := map[string]interface{}{
		"command":  argv[0],
		"duration": elapsed.Round(time.Millisecond).String(),
	}

	if runErr != nil {
		var execErr *exec.Error
		switch {
		case errors.As(runErr, &execErr) || errors.Is(runErr, os.ErrNotExist):
			serr := recovery.CreateError(recovery.CategoryConfig, recovery.ReasonMissingConfig, errCtx)
			serr.OriginalError = runErr
			return "", serr
		case ctx.Err() != nil:
			return "", ctx.Err()
		case runCtx.Err() != nil:
			serr := recovery.CreateError(recovery.CategoryLLM, recovery.ReasonTimeout, errCtx)
			serr.OriginalError = runErr
			return "", serr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		errCtx["output"] = truncate(detail, 500)
		serr := recovery.CreateError(recovery.CategoryLLM, llmReason(detail), errCtx)
		serr.OriginalError = runErr
		return "", serr
	}

	text := unwrapJSON(stdout.String())
	if strings.TrimSpace(text) == "" {
		return "", recovery.CreateError(recovery.CategoryLLM, recovery.ReasonInvalidResponse, errCtx)
	}
	return text, nil
}

// llmReason maps agent output onto the LLM reasons of the recovery policy.
func llmReason(output string) recovery.Reason {
	switch r := recovery.ReasonOf(output); r {
	case recovery.ReasonRateLimit, recovery.ReasonTimeout:
		return r
	default:
		return recovery.ReasonAPIError
	}
}

// unwrapJSON accepts `--output-format json` replies: {"result": "..."} or
// {"content": "..."}. Anything else is returned unchanged.
func unwrapJSON(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "{") {
		return output
	}
	var reply struct {
		Result  *string `json:"result"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
		return output
	}
	switch {
	case reply.Result != nil:
		return *reply.Result
	case reply.Content != nil:
		return *reply.Content
	default:
		return output
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
