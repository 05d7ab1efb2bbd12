package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/crucible/internal/analyzer"
	"github.com/harrison/crucible/internal/models"
	"github.com/harrison/crucible/internal/sandbox"
)

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <log-file | ->",
		Short: "Analyze a saved test-runner log",
		Long: `Analyze the output of a test run without executing anything.

The log is read from the file (or stdin for "-") and analyzed as if the
sandbox had produced it with the given --status. Failures are categorized
and printed with their root causes and correction prompts.

Examples:
  go test -v ./... 2>&1 | crucible analyze --status failure -
  crucible analyze --status compilation_error build.log
  crucible analyze --json pytest.log`,
		Args: cobra.ExactArgs(1),
		RunE: analyzeCommand,
	}

	cmd.Flags().String("status", string(models.ExecFailure), "Execution status: success, failure, timeout, compilation_error")
	cmd.Flags().Int("exit-code", 1, "Exit code of the run (failure status only)")
	cmd.Flags().Bool("json", false, "Print the analysis as JSON")

	return cmd
}

func analyzeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}

	statusFlag, _ := cmd.Flags().GetString("status")
	exitCode, _ := cmd.Flags().GetInt("exit-code")
	res, err := executionFromLog(string(data), models.ExecutionStatus(statusFlag), exitCode)
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	analysis, err := analyzer.New(log).Analyze(res)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	printAnalysis(out, analysis)
	return nil
}

// executionFromLog rebuilds the ExecutionResult the sandbox would have
// produced for output under status.
func executionFromLog(output string, status models.ExecutionStatus, exitCode int) (models.ExecutionResult, error) {
	res := models.ExecutionResult{Status: status, Output: output}
	switch status {
	case models.ExecSuccess:
		res.ExitCode = models.IntPtr(0)
	case models.ExecFailure:
		if exitCode == 0 {
			exitCode = 1
		}
		res.ExitCode = models.IntPtr(exitCode)
		res.Errors = sandbox.ParseDiagnostics(output, models.RawTestOutput)
	case models.ExecTimeout:
		res.Errors = []models.RawError{{Kind: models.RawTimeout, Message: "test run timed out"}}
	case models.ExecCompilationError:
		res.ExitCode = models.IntPtr(1)
		res.Errors = sandbox.CompileDiagnostics(output)
	default:
		return res, fmt.Errorf("invalid --status %q, must be one of: success, failure, timeout, compilation_error", status)
	}
	return res, nil
}

func printAnalysis(w io.Writer, a models.AnalysisResult) {
	fmt.Fprintf(w, "Status: %s\n", a.Status)
	fmt.Fprintf(w, "Tests: %d total, %d passed, %d failed (%.1f%%)\n", a.TotalTests, a.PassedTests, a.FailedTests, a.PassRate*100)

	for i, f := range a.Failures {
		fmt.Fprintf(w, "\n%d. [%s] %s\n", i+1, f.Category, indent(f.Message, "   "))
		if f.Location != nil {
			fmt.Fprintf(w, "   at %s:%d\n", f.Location.File, f.Location.Line)
		}
		fmt.Fprintf(w, "   root cause: %s\n", f.RootCause)
		fmt.Fprintf(w, "   prompt: %s\n", f.CorrectionPrompt)
	}

	if len(a.Suggestions) > 0 {
		fmt.Fprintf(w, "\nSuggestions:\n")
		for _, s := range a.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
