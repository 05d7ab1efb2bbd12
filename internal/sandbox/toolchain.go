package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// Toolchain describes how a language builds and tests a candidate. Command
// templates may reference {dir}, {candidate} and {suite}; they are expanded
// and then split with shell quoting rules.
type Toolchain struct {
	Name          string            `yaml:"name"`
	CandidateFile string            `yaml:"candidate_file"`
	SuiteFile     string            `yaml:"suite_file"`
	Build         string            `yaml:"build"` // empty skips the build step
	Test          string            `yaml:"test"`
	Files         map[string]string `yaml:"files"` // extra files written before building
}

var builtinToolchains = map[string]Toolchain{
	"go": {
		Name:          "go",
		CandidateFile: "candidate.go",
		SuiteFile:     "candidate_test.go",
		Build:         "go test -c -o {dir}/candidate.test .",
		Test:          "{dir}/candidate.test -test.v -test.count=1",
		Files:         map[string]string{"go.mod": "module candidate\n\ngo 1.21\n"},
	},
	"python": {
		Name:          "python",
		CandidateFile: "candidate.py",
		SuiteFile:     "test_candidate.py",
		Build:         "python3 -m py_compile {candidate} {suite}",
		Test:          "python3 -m pytest -v {suite}",
	},
	"elixir": {
		Name:          "elixir",
		CandidateFile: "candidate.ex",
		SuiteFile:     "candidate_test.exs",
		Build:         "elixirc --ignore-module-conflict -o {dir}/ebin {candidate}",
		Test:          "elixir -pa {dir}/ebin {suite}",
	},
	"shell": {
		Name:          "shell",
		CandidateFile: "candidate.sh",
		SuiteFile:     "suite.sh",
		Build:         "sh -n {candidate}",
		Test:          "sh {suite}",
	},
}

// LookupToolchain returns a copy of a built-in toolchain profile.
func LookupToolchain(name string) (Toolchain, error) {
	tc, ok := builtinToolchains[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Toolchain{}, fmt.Errorf("unknown toolchain %q (available: %s)", name, strings.Join(ToolchainNames(), ", "))
	}
	files := make(map[string]string, len(tc.Files))
	for k, v := range tc.Files {
		files[k] = v
	}
	tc.Files = files
	return tc, nil
}

// ToolchainNames lists the built-in profiles in sorted order.
func ToolchainNames() []string {
	names := make([]string, 0, len(builtinToolchains))
	for name := range builtinToolchains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge overlays the non-empty fields of override onto tc.
func (tc Toolchain) Merge(override Toolchain) Toolchain {
	if override.Name != "" {
		tc.Name = override.Name
	}
	if override.CandidateFile != "" {
		tc.CandidateFile = override.CandidateFile
	}
	if override.SuiteFile != "" {
		tc.SuiteFile = override.SuiteFile
	}
	if override.Build != "" {
		tc.Build = override.Build
	}
	if override.Test != "" {
		tc.Test = override.Test
	}
	for k, v := range override.Files {
		if tc.Files == nil {
			tc.Files = make(map[string]string)
		}
		tc.Files[k] = v
	}
	return tc
}

// Validate checks that the profile can materialize and run a candidate.
func (tc Toolchain) Validate() error {
	if tc.CandidateFile == "" {
		return fmt.Errorf("toolchain %q: candidate_file is required", tc.Name)
	}
	if tc.SuiteFile == "" {
		return fmt.Errorf("toolchain %q: suite_file is required", tc.Name)
	}
	if tc.CandidateFile == tc.SuiteFile {
		return fmt.Errorf("toolchain %q: candidate_file and suite_file must differ", tc.Name)
	}
	if strings.TrimSpace(tc.Test) == "" {
		return fmt.Errorf("toolchain %q: test command is required", tc.Name)
	}
	for _, name := range append([]string{tc.CandidateFile, tc.SuiteFile}, mapKeys(tc.Files)...) {
		if err := validateFileName(name); err != nil {
			return fmt.Errorf("toolchain %q: %w", tc.Name, err)
		}
	}
	if _, err := tc.expand(tc.Test, "/tmp"); err != nil {
		return err
	}
	if tc.Build != "" {
		if _, err := tc.expand(tc.Build, "/tmp"); err != nil {
			return err
		}
	}
	return nil
}

func (tc Toolchain) buildArgs(dir string) ([]string, error) {
	if strings.TrimSpace(tc.Build) == "" {
		return nil, nil
	}
	return tc.expand(tc.Build, dir)
}

func (tc Toolchain) testArgs(dir string) ([]string, error) {
	return tc.expand(tc.Test, dir)
}

func (tc Toolchain) expand(tpl, dir string) ([]string, error) {
	r := strings.NewReplacer(
		"{dir}", dir,
		"{candidate}", tc.CandidateFile,
		"{suite}", tc.SuiteFile,
	)
	fields, err := shlex.Split(r.Replace(tpl))
	if err != nil {
		return nil, fmt.Errorf("parse command template %q: %w", tpl, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("command template %q is empty after expansion", tpl)
	}
	return fields, nil
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
