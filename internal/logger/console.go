// Package logger provides the console and file loggers used by crucible.
//
// Both loggers are leveled (trace, debug, info, warn, error), prefix every
// line with an [HH:MM:SS] timestamp and are safe for concurrent use. Packages
// consume them through small local interfaces (Debugf, Infof, Warnf) so that
// the core never depends on this package.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/crucible/internal/models"
)

// Logger is the full logging surface used by the CLI.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	LogIteration(result models.RefinementResult, maxIterations int)
	LogOutcome(summary OutcomeSummary)
}

// OutcomeSummary is what LogOutcome reports at the end of a refinement run.
type OutcomeSummary struct {
	Kind       string
	Iterations int
	PassRate   float64
	Duration   time.Duration
	Err        error
}

// ConsoleLogger writes leveled, timestamped lines to a writer. Color output
// is enabled automatically when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to writer. A nil
// writer discards everything. Unknown levels fall back to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether w is a TTY that should receive ANSI colors.
// NO_COLOR (honoured by fatih/color) disables colors everywhere.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if cl.writer == nil || !allowed(cl.logLevel, strings.ToLower(level)) {
		return
	}

	levelText := level
	if cl.colorOutput {
		levelText = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), levelText, message))
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	_, _ = io.WriteString(cl.writer, s)
}

// LogIteration reports one refinement iteration at INFO level, followed by
// its improvements and, at DEBUG level, its failures.
// Format: "[HH:MM:SS] Iteration 2/5 [======    ] 60% (3/5 tests)"
func (cl *ConsoleLogger) LogIteration(result models.RefinementResult, maxIterations int) {
	if cl.writer == nil || !allowed(cl.logLevel, "info") {
		return
	}

	ts := timestamp()
	a := result.Analysis
	bar := renderPassBar(result.PassRate, 10)
	line := fmt.Sprintf("%s %3.0f%% (%d/%d tests)", bar, result.PassRate*100, a.PassedTests, a.TotalTests)
	header := fmt.Sprintf("Iteration %d/%d", result.Iteration, maxIterations)
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
		line = passRateColor(result.PassRate).Sprint(line)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s\n", ts, header, line)
	for _, imp := range result.Improvements {
		fmt.Fprintf(&sb, "[%s]   + %s\n", ts, imp)
	}
	if allowed(cl.logLevel, "debug") {
		for _, f := range a.Failures {
			loc := ""
			if f.Location != nil {
				loc = fmt.Sprintf(" (%s:%d)", f.Location.File, f.Location.Line)
			}
			fmt.Fprintf(&sb, "[%s]   - [%s] %s%s\n", ts, f.Category, firstLine(f.Message), loc)
		}
	}
	cl.write(sb.String())
}

// LogOutcome reports the terminal state of a refinement run at INFO level.
func (cl *ConsoleLogger) LogOutcome(summary OutcomeSummary) {
	if cl.writer == nil || !allowed(cl.logLevel, "info") {
		return
	}

	ts := timestamp()
	kind := strings.ToUpper(summary.Kind)
	if cl.colorOutput {
		switch summary.Kind {
		case "success":
			kind = color.New(color.FgGreen, color.Bold).Sprint(kind)
		case "partial_success":
			kind = color.New(color.FgYellow, color.Bold).Sprint(kind)
		default:
			kind = color.New(color.FgRed, color.Bold).Sprint(kind)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] === Refinement %s ===\n", ts, kind)
	fmt.Fprintf(&sb, "[%s] Iterations: %d\n", ts, summary.Iterations)
	fmt.Fprintf(&sb, "[%s] Pass rate: %.1f%%\n", ts, summary.PassRate*100)
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(summary.Duration))
	if summary.Err != nil {
		fmt.Fprintf(&sb, "[%s] Reason: %v\n", ts, summary.Err)
	}
	cl.write(sb.String())
}

func passRateColor(rate float64) *color.Color {
	switch {
	case rate >= 1.0:
		return color.New(color.FgGreen)
	case rate >= 0.5:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// timestamp returns the current time formatted as HH:MM:SS.
func timestamp() string {
	return time.Now().Format("15:04:05")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		minutes := remainder / time.Minute
		if remainder%time.Minute == 0 {
			if minutes == 0 {
				return fmt.Sprintf("%dh", hours)
			}
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, (remainder%time.Minute)/time.Second)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, remainder/time.Second)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Tracef(string, ...interface{})             {}
func (n *NoOpLogger) Debugf(string, ...interface{})             {}
func (n *NoOpLogger) Infof(string, ...interface{})              {}
func (n *NoOpLogger) Warnf(string, ...interface{})              {}
func (n *NoOpLogger) Errorf(string, ...interface{})             {}
func (n *NoOpLogger) LogIteration(models.RefinementResult, int) {}
func (n *NoOpLogger) LogOutcome(OutcomeSummary)                 {}
