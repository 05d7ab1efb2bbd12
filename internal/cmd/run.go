package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/crucible/internal/agent"
	"github.com/harrison/crucible/internal/analyzer"
	"github.com/harrison/crucible/internal/filelock"
	"github.com/harrison/crucible/internal/logger"
	"github.com/harrison/crucible/internal/metrics"
	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/refiner"
	"github.com/harrison/crucible/internal/sandbox"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <candidate-file> <suite-file>",
		Short: "Refine a candidate until its test suite passes",
		Long: `Refine a candidate source file against a test suite.

Each iteration builds and tests the candidate in a fresh sandbox workspace,
analyzes the failures, and sends the candidate plus correction prompts to
the configured agent for a rewrite. The loop stops on success, on a
plateau at a high pass rate, or after --max-iterations.

Examples:
  crucible run add.py test_add.py
  crucible run --toolchain go --timeout 1m add.go add_test.go
  crucible run --no-agent candidate.sh suite.sh        # test once, no rewrites
  crucible run --write --backup add.py test_add.py     # replace add.py with the result
  crucible run --metrics-file crucible.prom add.py test_add.py`,
		Args: cobra.ExactArgs(2),
		RunE: runCommand,
	}

	cmd.Flags().String("toolchain", "", "Toolchain profile (go, python, elixir, shell, or one from config)")
	cmd.Flags().String("timeout", "", "Per-run test timeout (e.g., 30s, 2m)")
	cmd.Flags().Int("max-iterations", 0, "Maximum refinement iterations")
	cmd.Flags().Float64("pass-threshold", 0, "Pass rate that counts as success (0-1]")
	cmd.Flags().String("agent", "", "Agent command line; the prompt is sent on stdin")
	cmd.Flags().Bool("no-agent", false, "Do not rewrite the candidate between iterations")
	cmd.Flags().String("log-dir", "", "Directory for run logs")
	cmd.Flags().Bool("no-log-file", false, "Log to the console only")
	cmd.Flags().Bool("write", false, "Write the final candidate back over <candidate-file>")
	cmd.Flags().Bool("backup", false, "With --write, keep the original as <candidate-file>.orig")
	cmd.Flags().String("output", "", "Write the final candidate to this path")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when done")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	candidatePath, suitePath := args[0], args[1]
	candidate, err := os.ReadFile(candidatePath)
	if err != nil {
		return fmt.Errorf("failed to read candidate: %w", err)
	}
	suite, err := os.ReadFile(suitePath)
	if err != nil {
		return fmt.Errorf("failed to read suite: %w", err)
	}

	noLogFile, _ := cmd.Flags().GetBool("no-log-file")
	log, closeLog, err := newLogger(cmd, cfg, !noLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	tc, err := resolveToolchain(cfg)
	if err != nil {
		return fmt.Errorf("invalid toolchain: %w", err)
	}
	sb, err := sandbox.New(sandboxConfig(cfg, tc), log)
	if err != nil {
		return err
	}
	executor := newRetryingExecutor(sb.Bind(sandboxOptions(cfg)), retryConfig(cfg), log)

	opts := []refiner.Option{
		refiner.WithLogger(log),
		refiner.WithObserver(func(_ int, result models.RefinementResult) {
			log.LogIteration(result, cfg.Refiner.MaxIterations)
		}),
	}
	if noAgent, _ := cmd.Flags().GetBool("no-agent"); !noAgent {
		inv := agent.NewInvoker(cfg.Agent.Command, cfg.Agent.Timeout)
		ag := agent.NewRefiner(inv, tc.Name,
			agent.WithRetryConfig(retryConfig(cfg)),
			agent.WithLogger(log))
		opts = append(opts, refiner.WithRefineFunc(ag.Refine))
	}

	r, err := refiner.New(refinerConfig(cfg), executor, analyzer.New(log), opts...)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	log.Infof("run %s: refining %s against %s with toolchain %s", runID[:8], candidatePath, suitePath, tc.Name)

	start := time.Now()
	outcome, err := r.Refine(ctx, string(candidate), string(suite))
	if metricsFile, _ := cmd.Flags().GetString("metrics-file"); metricsFile != "" {
		if merr := metrics.WriteTextfile(metricsFile); merr != nil {
			log.Warnf("failed to write metrics: %v", merr)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("run %s interrupted", runID[:8])
		}
		return fmt.Errorf("refinement failed: %w", err)
	}

	if last, ok := outcome.History.Latest(); ok {
		log.LogIteration(last, cfg.Refiner.MaxIterations)
	}
	log.LogOutcome(logger.OutcomeSummary{
		Kind:       string(outcome.Kind),
		Iterations: outcome.Iteration,
		PassRate:   outcome.PassRate,
		Duration:   time.Since(start),
		Err:        outcome.Err,
	})

	if err := writeResult(ctx, cmd, candidatePath, string(candidate), outcome.Code, log); err != nil {
		return err
	}

	if outcome.Kind == refiner.OutcomeExhausted {
		return fmt.Errorf("refinement did not converge after %d iterations (pass rate %.1f%%): %w",
			outcome.Iteration, outcome.PassRate*100, outcome.Err)
	}
	return nil
}

func writeResult(ctx context.Context, cmd *cobra.Command, candidatePath, original, final string, log logger.Logger) error {
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := filelock.WriteBack(ctx, output, []byte(final), filelock.WriteBackOptions{}); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		log.Infof("wrote final candidate to %s", output)
	}

	write, _ := cmd.Flags().GetBool("write")
	if !write {
		return nil
	}
	if final == original {
		log.Infof("candidate unchanged, not rewriting %s", candidatePath)
		return nil
	}
	backup, _ := cmd.Flags().GetBool("backup")
	if err := filelock.WriteBack(ctx, candidatePath, []byte(final), filelock.WriteBackOptions{Backup: backup}); err != nil {
		return fmt.Errorf("failed to write back %s: %w", candidatePath, err)
	}
	log.Infof("rewrote %s", candidatePath)
	return nil
}
