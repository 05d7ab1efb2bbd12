package analyzer

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harrison/crucible/internal/models"
)

// failureRecord is one failure pulled out of runner output before it is
// categorized.
type failureRecord struct {
	name     string
	message  string
	location *models.Location
	generic  bool // message was synthesized, no runner detail available
}

func (r failureRecord) text() string {
	if r.name == "" {
		return r.message
	}
	if r.message == "" {
		return r.name + " failed"
	}
	return r.name + ": " + r.message
}

var (
	goRunLine      = regexp.MustCompile(`^=== (RUN|CONT|NAME|PAUSE)\s+(\S+)`)
	goResultHeader = regexp.MustCompile(`^\s*--- (PASS|FAIL|SKIP): (\S+)`)
	goLogLine      = regexp.MustCompile(`^\s+([\w.-]+\.go):(\d+): (.+)$`)
	goPanicLine    = regexp.MustCompile(`^panic: (.+)$`)
	goFrameLine    = regexp.MustCompile(`^\s+(\S+\.go):(\d+)`)
	pytestHeader   = regexp.MustCompile(`^_{3,} (.+?) _{3,}$`)
	pytestELine    = regexp.MustCompile(`^E\s+(.+)$`)
	pytestLocLine  = regexp.MustCompile(`^([\w./-]+\.py):(\d+): (\w+)`)
	pytestSummary  = regexp.MustCompile(`^FAILED (\S+::\S+?)(?: - (.+))?$`)
	unittestHead   = regexp.MustCompile(`^(FAIL|ERROR): (\S+)`)
	pyFrameLine    = regexp.MustCompile(`^\s*File "([^"]+)", line (\d+)`)
	pyExcLine      = regexp.MustCompile(`^([A-Za-z_][\w.]*(?:Error|Exception|Exit)):?\s*(.*)$`)
	exunitHeader   = regexp.MustCompile(`^\s*\d+\) test (.+) \((\S+)\)\s*$`)
	exunitLoc      = regexp.MustCompile(`^\s*([\w./-]+\.exs?):(\d+)\s*$`)
)

// extractFailures runs the runner-specific extractors in order and returns
// the first non-empty result, falling back to crash traces.
func extractFailures(output string) []failureRecord {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	for _, extract := range []func([]string) []failureRecord{
		extractGoTest,
		extractPytest,
		extractUnittest,
		extractExUnit,
		extractTraceback,
	} {
		if recs := extract(lines); len(recs) > 0 {
			return recs
		}
	}
	return nil
}

// extractGoTest attributes each `file.go:N: msg` log line to the test that
// was running (=== RUN/CONT) or whose result header it follows, then emits
// one record per failing test. A failing parent with a failing subtest and no
// log lines of its own is dropped in favour of the subtest.
func extractGoTest(lines []string) []failureRecord {
	var failed []string
	logs := make(map[string][]failureRecord)
	type panicAt struct {
		test string
		rec  failureRecord
	}
	var panics []panicAt
	current := ""

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if m := goRunLine.FindStringSubmatch(line); m != nil {
			if m[1] != "PAUSE" {
				current = m[2]
			}
			continue
		}
		if m := goResultHeader.FindStringSubmatch(line); m != nil {
			current = m[2]
			if m[1] == "FAIL" && !contains(failed, current) {
				failed = append(failed, current)
			}
			continue
		}
		if m := goLogLine.FindStringSubmatch(line); m != nil {
			logs[current] = append(logs[current], failureRecord{
				message:  strings.TrimSpace(m[3]),
				location: &models.Location{File: m[1], Line: atoi(m[2])},
			})
			continue
		}
		if m := goPanicLine.FindStringSubmatch(line); m != nil {
			panics = append(panics, panicAt{
				test: current,
				rec:  failureRecord{message: "panic: " + m[1], location: firstUserFrame(lines[i+1:])},
			})
		}
	}

	var recs []failureRecord
	for _, name := range failed {
		own := logs[name]
		if len(own) == 0 && hasFailedSubtest(failed, name) {
			continue
		}
		rec := failureRecord{name: name, generic: true}
		if len(own) > 0 {
			rec.message = own[0].message
			rec.location = own[0].location
			rec.generic = false
		}
		recs = append(recs, rec)
	}

	for _, p := range panics {
		attached := false
		for i := range recs {
			if recs[i].name == p.test && recs[i].generic {
				recs[i].message = p.rec.message
				recs[i].location = p.rec.location
				recs[i].generic = false
				attached = true
				break
			}
		}
		if !attached && (len(recs) == 0 || !contains(failed, p.test)) {
			recs = append(recs, p.rec)
		}
	}
	return recs
}

func hasFailedSubtest(failed []string, parent string) bool {
	for _, name := range failed {
		if strings.HasPrefix(name, parent+"/") {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// firstUserFrame finds the first stack frame outside the Go runtime and the
// testing package.
func firstUserFrame(lines []string) *models.Location {
	for _, line := range lines {
		m := goFrameLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := filepath.ToSlash(m[1])
		if strings.Contains(path, "/runtime/") || strings.Contains(path, "/testing/") {
			continue
		}
		return &models.Location{File: filepath.Base(m[1]), Line: atoi(m[2])}
	}
	return nil
}

func extractPytest(lines []string) []failureRecord {
	var recs []failureRecord
	var cur *failureRecord

	flush := func() {
		if cur != nil {
			if cur.message == "" {
				cur.generic = true
			}
			recs = append(recs, *cur)
			cur = nil
		}
	}

	for _, line := range lines {
		if m := pytestHeader.FindStringSubmatch(line); m != nil {
			flush()
			if strings.Contains(strings.ToLower(m[1]), "summary") {
				continue
			}
			cur = &failureRecord{name: m[1]}
			continue
		}
		if strings.HasPrefix(line, "=====") {
			flush()
			continue
		}
		if cur == nil {
			continue
		}
		if m := pytestELine.FindStringSubmatch(line); m != nil && cur.message == "" {
			cur.message = strings.TrimSpace(m[1])
			continue
		}
		if m := pytestLocLine.FindStringSubmatch(line); m != nil {
			cur.location = &models.Location{File: m[1], Line: atoi(m[2])}
			if cur.message == "" {
				cur.message = m[3]
			}
		}
	}
	flush()
	if len(recs) > 0 {
		return recs
	}

	for _, line := range lines {
		if m := pytestSummary.FindStringSubmatch(line); m != nil {
			rec := failureRecord{name: m[1], message: strings.TrimSpace(m[2])}
			if file, _, ok := strings.Cut(m[1], "::"); ok {
				rec.location = &models.Location{File: file}
			}
			recs = append(recs, rec)
		}
	}
	return recs
}

func extractUnittest(lines []string) []failureRecord {
	var recs []failureRecord
	for i := 0; i < len(lines); i++ {
		m := unittestHead.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		rec := failureRecord{name: m[2], generic: true}
		j := i + 1
		for ; j < len(lines); j++ {
			if unittestHead.MatchString(lines[j]) || strings.HasPrefix(lines[j], "Ran ") || strings.HasPrefix(lines[j], "=====") {
				break
			}
			if f := pyFrameLine.FindStringSubmatch(lines[j]); f != nil {
				rec.location = &models.Location{File: filepath.Base(f[1]), Line: atoi(f[2])}
			}
			if e := pyExcLine.FindStringSubmatch(strings.TrimSpace(lines[j])); e != nil {
				rec.message = joinNonEmpty(e[1], e[2])
				rec.generic = false
			}
		}
		recs = append(recs, rec)
		i = j - 1
	}
	return recs
}

func extractExUnit(lines []string) []failureRecord {
	var recs []failureRecord
	for i := 0; i < len(lines); i++ {
		m := exunitHeader.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		rec := failureRecord{name: m[1], generic: true}
		j := i + 1
		for ; j < len(lines); j++ {
			line := strings.TrimSpace(lines[j])
			if exunitHeader.MatchString(lines[j]) || strings.HasPrefix(line, "Finished in") {
				break
			}
			if line == "" {
				continue
			}
			if l := exunitLoc.FindStringSubmatch(lines[j]); l != nil {
				if rec.location == nil {
					rec.location = &models.Location{File: l[1], Line: atoi(l[2])}
				}
				continue
			}
			if rec.generic {
				rec.message = line
				rec.generic = false
				continue
			}
			if strings.HasPrefix(line, "left:") || strings.HasPrefix(line, "right:") {
				rec.message += "; " + line
			}
		}
		recs = append(recs, rec)
		i = j - 1
	}
	return recs
}

// extractTraceback handles uncaught crashes that no runner reported as a
// test failure: Go panics and Python tracebacks.
func extractTraceback(lines []string) []failureRecord {
	for i, line := range lines {
		if m := goPanicLine.FindStringSubmatch(line); m != nil {
			return []failureRecord{{message: "panic: " + m[1], location: firstUserFrame(lines[i+1:])}}
		}
	}

	var recs []failureRecord
	inTrace := false
	var loc *models.Location
	for _, line := range lines {
		if strings.HasPrefix(line, "Traceback (most recent call last)") {
			inTrace, loc = true, nil
			continue
		}
		if !inTrace {
			continue
		}
		if f := pyFrameLine.FindStringSubmatch(line); f != nil {
			loc = &models.Location{File: filepath.Base(f[1]), Line: atoi(f[2])}
			continue
		}
		if e := pyExcLine.FindStringSubmatch(strings.TrimSpace(line)); e != nil && !strings.HasPrefix(line, " ") {
			recs = append(recs, failureRecord{message: joinNonEmpty(e[1], e[2]), location: loc})
			inTrace = false
		}
	}
	return recs
}

// fromRawErrors converts sandbox error records when the output itself could
// not be parsed, for example because output capture was disabled.
func fromRawErrors(errs []models.RawError) []failureRecord {
	recs := make([]failureRecord, 0, len(errs))
	for _, e := range errs {
		recs = append(recs, failureRecord{message: e.Message, location: rawLocation(e)})
	}
	return recs
}

func rawLocation(e models.RawError) *models.Location {
	if e.File == "" {
		return nil
	}
	return &models.Location{File: e.File, Line: e.Line}
}

// tail returns the last n non-blank lines of s.
func tail(s string, n int) string {
	var kept []string
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			kept = append([]string{strings.TrimRight(lines[i], " \t")}, kept...)
		}
	}
	return strings.Join(kept, "\n")
}

func joinNonEmpty(head, rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return head
	}
	return head + ": " + rest
}
