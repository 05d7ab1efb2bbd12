package sandbox

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/crucible/internal/models"
)

var (
	// file.ext:line[:col]: message (go, gcc, rustc short form, elixir warnings)
	locatedLine = regexp.MustCompile(`^\s*(?:\./)?([\w./\\-]+\.\w+):(\d+)(?::(\d+))?:\s*(.+)$`)
	// ** (CompileError) file.ex:3: message
	elixirError = regexp.MustCompile(`^\s*\*\* \(([\w.]+)\) ([\w./\\-]+\.\w+):(\d+):\s*(.+)$`)
	// File "x.py", line 3
	pythonFrame = regexp.MustCompile(`^\s*File "([^"]+)", line (\d+)`)
	// SyntaxError: invalid syntax
	pythonError = regexp.MustCompile(`^\s*(?:E\s+)?([A-Z]\w*(?:Error|Exception)):\s*(.*)$`)
)

// ParseDiagnostics extracts located diagnostics from compiler or runner
// output. Lines are returned in the order they appear. kind tags every record.
func ParseDiagnostics(output string, kind models.RawErrorKind) []models.RawError {
	var errs []models.RawError
	var pendingFile string
	var pendingLine int

	for _, line := range strings.Split(output, "\n") {
		if m := elixirError.FindStringSubmatch(line); m != nil {
			errs = append(errs, models.RawError{
				Kind:    kind,
				Message: m[1] + ": " + strings.TrimSpace(m[4]),
				File:    m[2],
				Line:    atoi(m[3]),
			})
			continue
		}
		if m := locatedLine.FindStringSubmatch(line); m != nil {
			errs = append(errs, models.RawError{
				Kind:    kind,
				Message: strings.TrimSpace(m[4]),
				File:    m[1],
				Line:    atoi(m[2]),
				Column:  atoi(m[3]),
			})
			continue
		}
		if m := pythonFrame.FindStringSubmatch(line); m != nil {
			pendingFile, pendingLine = m[1], atoi(m[2])
			continue
		}
		if m := pythonError.FindStringSubmatch(line); m != nil && pendingFile != "" {
			msg := m[1]
			if rest := strings.TrimSpace(m[2]); rest != "" {
				msg += ": " + rest
			}
			errs = append(errs, models.RawError{Kind: kind, Message: msg, File: pendingFile, Line: pendingLine})
			pendingFile, pendingLine = "", 0
		}
	}
	return errs
}

// CompileDiagnostics parses build output. It never returns an empty slice:
// output that carries no recognizable location becomes a single unlocated
// diagnostic.
func CompileDiagnostics(output string) []models.RawError {
	errs := ParseDiagnostics(output, models.RawDiagnostic)
	if len(errs) > 0 {
		return errs
	}
	msg := strings.TrimSpace(output)
	if msg == "" {
		msg = "build failed without output"
	}
	return []models.RawError{{Kind: models.RawDiagnostic, Message: firstLines(msg, 20)}}
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
