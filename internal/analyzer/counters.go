package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// testCounts are the totals reported by a test runner. ok is false when no
// recognizable summary was found.
type testCounts struct {
	total  int
	passed int
	failed int
	ok     bool
}

var (
	goResultLine = regexp.MustCompile(`(?m)^\s*--- (PASS|FAIL): (\S+)`)

	exunitSummary = regexp.MustCompile(`(\d+) tests?, (\d+) failures?`)

	unittestRan      = regexp.MustCompile(`(?m)^Ran (\d+) tests? in`)
	unittestFailures = regexp.MustCompile(`failures=(\d+)`)
	unittestErrors   = regexp.MustCompile(`errors=(\d+)`)

	passedCount = regexp.MustCompile(`(\d+) passed`)
	failedCount = regexp.MustCompile(`(\d+) failed`)
	errorCount  = regexp.MustCompile(`(\d+) errors?\b`)
	totalCount  = regexp.MustCompile(`Tests:.*?(\d+) total`)
)

// parseCounts recognizes, in order: go test -v result lines, ExUnit and
// unittest summaries, pytest style "N passed, M failed" and a generic
// "Tests: ... N total" line.
func parseCounts(output string) testCounts {
	if c, ok := goLeafCounts(output); ok {
		return c
	}

	if m := lastMatch(exunitSummary, output); m != nil {
		total, failed := atoi(m[1]), atoi(m[2])
		return normalize(total, total-failed, failed)
	}

	if m := lastMatch(unittestRan, output); m != nil {
		total := atoi(m[1])
		failed := 0
		if f := lastMatch(unittestFailures, output); f != nil {
			failed += atoi(f[1])
		}
		if e := lastMatch(unittestErrors, output); e != nil {
			failed += atoi(e[1])
		}
		return normalize(total, total-failed, failed)
	}

	p, f := lastMatch(passedCount, output), lastMatch(failedCount, output)
	if p != nil || f != nil {
		passed, failed := 0, 0
		if p != nil {
			passed = atoi(p[1])
		}
		if f != nil {
			failed = atoi(f[1])
		}
		if e := lastMatch(errorCount, output); e != nil {
			failed += atoi(e[1])
		}
		total := passed + failed
		if t := lastMatch(totalCount, output); t != nil && atoi(t[1]) > total {
			total = atoi(t[1])
			failed = total - passed
		}
		return normalize(total, passed, failed)
	}

	return testCounts{}
}

// goLeafCounts counts go test -v results, skipping any test that has
// subtests so a table-driven test is counted once per case.
func goLeafCounts(output string) (testCounts, bool) {
	results := goResultLine.FindAllStringSubmatch(output, -1)
	if len(results) == 0 {
		return testCounts{}, false
	}
	var c testCounts
	for _, r := range results {
		if hasSubtest(results, r[2]) {
			continue
		}
		if r[1] == "PASS" {
			c.passed++
		} else {
			c.failed++
		}
	}
	c.total = c.passed + c.failed
	c.ok = c.total > 0
	return c, c.ok
}

func hasSubtest(results [][]string, parent string) bool {
	for _, r := range results {
		if strings.HasPrefix(r[2], parent+"/") {
			return true
		}
	}
	return false
}

func normalize(total, passed, failed int) testCounts {
	if passed < 0 {
		passed = 0
	}
	if failed < 0 {
		failed = 0
	}
	if total != passed+failed {
		total = passed + failed
	}
	return testCounts{total: total, passed: passed, failed: failed, ok: total > 0}
}

func lastMatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
