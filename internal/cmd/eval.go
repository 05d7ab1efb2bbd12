package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/crucible/internal/sandbox"
)

// NewEvalCommand creates the eval command
func NewEvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate a single expression in the sandbox",
		Long: `Evaluate one expression with the configured evaluator command under the
same timeout and kill guarantees as a test run.

The expression is passed as the last argument of the evaluator command
(default: python3 printing eval(sys.argv[1])).

Examples:
  crucible eval "1 + 2"
  crucible eval --command "node -p" "[1,2,3].map(x => x * 2)"
  crucible eval --eval-timeout 100ms "sum(range(10**9))"`,
		Args: cobra.ExactArgs(1),
		RunE: evalCommand,
	}

	cmd.Flags().String("command", "", "Evaluator command line (default from config)")
	cmd.Flags().String("eval-timeout", "", "Evaluation timeout (e.g., 2s)")

	return cmd
}

func evalCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	command := cfg.Evaluator.Command
	if cmd.Flags().Changed("command") {
		command, _ = cmd.Flags().GetString("command")
	}
	timeout := cfg.Evaluator.Timeout
	if cmd.Flags().Changed("eval-timeout") {
		raw, _ := cmd.Flags().GetString("eval-timeout")
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", raw, err)
		}
	}

	ev, err := sandbox.NewEvaluator(command, cfg.Sandbox.WorkRoot, cfg.Sandbox.HardCap)
	if err != nil {
		return err
	}

	value, err := ev.Evaluate(cmd.Context(), args[0], timeout)
	if err != nil {
		var evalErr *sandbox.EvalError
		switch {
		case errors.Is(err, sandbox.ErrEvalTimeout):
			return fmt.Errorf("%w after %v", err, timeout)
		case errors.As(err, &evalErr):
			return evalErr
		default:
			return fmt.Errorf("evaluation failed: %w", err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}
