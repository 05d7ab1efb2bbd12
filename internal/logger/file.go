package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/crucible/internal/models"
)

// DefaultLogDir is where run logs are written relative to the working directory.
var DefaultLogDir = filepath.Join(".crucible", "logs")

// FileLogger logs refinement events to files in .crucible/logs/.
// It creates a timestamped per-run log file, one snapshot file per
// iteration, and maintains a latest.log symlink pointing to the most
// recent run. It is safe for concurrent use.
type FileLogger struct {
	logDir        string
	runLog        *os.File
	runFile       string
	iterationsDir string
	logLevel      string
	mu            sync.Mutex
}

// NewFileLogger creates a FileLogger in logDir at the given level. An empty
// logDir means DefaultLogDir.
func NewFileLogger(logDir, logLevel string) (*FileLogger, error) {
	if logDir == "" {
		logDir = DefaultLogDir
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log; the iteration snapshots share the stem.
	stamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))
	iterationsDir := filepath.Join(logDir, fmt.Sprintf("run-%s", stamp))
	if err := os.MkdirAll(iterationsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create iterations directory: %w", err)
	}

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:        logDir,
		runLog:        file,
		runFile:       runFile,
		iterationsDir: iterationsDir,
		logLevel:      normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== Crucible Run Log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))
	return fl, nil
}

// RunFile returns the path of the run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

func (fl *FileLogger) Tracef(format string, args ...interface{}) {
	fl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Errorf(format string, args ...interface{}) {
	fl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) logWithLevel(level, message string) {
	if !allowed(fl.logLevel, strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogIteration appends a summary line to the run log and writes the full
// iteration (candidate code, failures, prompts) to iteration-N.log.
func (fl *FileLogger) LogIteration(result models.RefinementResult, maxIterations int) {
	a := result.Analysis
	fl.writeRunLog(fmt.Sprintf("[%s] Iteration %d/%d: %s, %d/%d tests passed (%.1f%%)\n",
		timestamp(), result.Iteration, maxIterations, a.Status, a.PassedTests, a.TotalTests, result.PassRate*100))

	if err := fl.writeIterationSnapshot(result); err != nil {
		fl.writeRunLog(fmt.Sprintf("[%s] [WARN] %v\n", timestamp(), err))
	}
}

func (fl *FileLogger) writeIterationSnapshot(result models.RefinementResult) error {
	path := filepath.Join(fl.iterationsDir, fmt.Sprintf("iteration-%d.log", result.Iteration))

	var sb strings.Builder
	a := result.Analysis
	fmt.Fprintf(&sb, "=== Iteration %d ===\n", result.Iteration)
	fmt.Fprintf(&sb, "Status: %s\n", a.Status)
	fmt.Fprintf(&sb, "Tests: %d total, %d passed, %d failed\n", a.TotalTests, a.PassedTests, a.FailedTests)
	fmt.Fprintf(&sb, "Pass rate: %.3f\n\n", result.PassRate)

	if len(result.Improvements) > 0 {
		sb.WriteString("Improvements:\n")
		for _, imp := range result.Improvements {
			fmt.Fprintf(&sb, "  - %s\n", imp)
		}
		sb.WriteString("\n")
	}

	for i, f := range a.Failures {
		fmt.Fprintf(&sb, "#### Failure %d [%s]\n", i+1, f.Category)
		if f.Location != nil {
			fmt.Fprintf(&sb, "Location: %s:%d\n", f.Location.File, f.Location.Line)
		}
		fmt.Fprintf(&sb, "Message:\n%s\n", f.Message)
		fmt.Fprintf(&sb, "Root cause: %s\n", f.RootCause)
		fmt.Fprintf(&sb, "Correction prompt:\n%s\n\n", f.CorrectionPrompt)
	}

	fmt.Fprintf(&sb, "Candidate:\n%s\n", result.Code)

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write iteration log: %w", err)
	}
	return nil
}

// LogOutcome writes the run summary to the run log.
func (fl *FileLogger) LogOutcome(summary OutcomeSummary) {
	var sb strings.Builder
	sb.WriteString("\n=== Refinement Summary ===\n")
	fmt.Fprintf(&sb, "Outcome: %s\n", summary.Kind)
	fmt.Fprintf(&sb, "Iterations: %d\n", summary.Iterations)
	fmt.Fprintf(&sb, "Pass rate: %.1f%%\n", summary.PassRate*100)
	fmt.Fprintf(&sb, "Duration: %s\n", formatDuration(summary.Duration))
	if summary.Err != nil {
		fmt.Fprintf(&sb, "Reason: %v\n", summary.Err)
	}
	fmt.Fprintf(&sb, "Completed at: %s\n", time.Now().Format(time.RFC3339))
	fl.writeRunLog(sb.String())
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		_, _ = fl.runLog.WriteString(message)
		_ = fl.runLog.Sync()
	}
}
