package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goodCandidate = "add() { echo $(($1 + $2)); }\n"
	badCandidate  = "add() { echo $(($1 - $2)); }\n"
	addSuite      = `. ./candidate.sh
if [ "$(add 1 2)" != "3" ]; then
  echo "suite.sh:2: add 1 2 returned $(add 1 2), expected 3"
  exit 1
fi
echo "ok"
`
)

// fixingAgent ignores its prompt and answers with the correct candidate.
const fixingAgent = `cat >/dev/null
cat <<'REPLY'
Here is the corrected file:

` + "```sh" + `
add() { echo $(($1 + $2)); }
` + "```" + `
REPLY
`

func runArgs(t *testing.T, dir string, extra ...string) []string {
	t.Helper()
	args := []string{"run",
		"--config", missingConfig(t),
		"--toolchain", "shell",
		"--timeout", "5s",
		"--log-dir", filepath.Join(dir, "logs"),
	}
	return append(args, extra...)
}

func TestRunCommand_PassingCandidate(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	candidate := writeFile(t, dir, "add.sh", goodCandidate)
	suite := writeFile(t, dir, "suite.sh", addSuite)

	out, err := executeCommand(t, runArgs(t, dir, "--no-agent", candidate, suite)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "=== Refinement SUCCESS ===")
	assert.Contains(t, out, "Iterations: 1")

	_, err = os.Lstat(filepath.Join(dir, "logs", "latest.log"))
	assert.NoError(t, err, "run log should be written")
}

func TestRunCommand_ExhaustedWithoutAgent(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	candidate := writeFile(t, dir, "add.sh", badCandidate)
	suite := writeFile(t, dir, "suite.sh", addSuite)

	out, err := executeCommand(t, runArgs(t, dir, "--no-agent", "--no-log-file", "--max-iterations", "2", candidate, suite)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not converge after 2 iterations")
	assert.Contains(t, out, "=== Refinement EXHAUSTED ===")

	_, statErr := os.Stat(filepath.Join(dir, "logs"))
	assert.True(t, os.IsNotExist(statErr), "--no-log-file must not create the log dir")
}

func TestRunCommand_AgentFixesAndWritesBack(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	candidate := writeFile(t, dir, "add.sh", badCandidate)
	suite := writeFile(t, dir, "suite.sh", addSuite)
	agentScript := writeFile(t, dir, "agent.sh", fixingAgent)
	metricsFile := filepath.Join(dir, "crucible.prom")

	out, err := executeCommand(t, runArgs(t, dir,
		"--agent", "sh "+agentScript,
		"--write", "--backup",
		"--metrics-file", metricsFile,
		candidate, suite)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Iteration 1/5")
	assert.Contains(t, out, "=== Refinement SUCCESS ===")
	assert.Contains(t, out, "Iterations: 2")

	rewritten, err := os.ReadFile(candidate)
	require.NoError(t, err)
	assert.Equal(t, goodCandidate, string(rewritten))

	orig, err := os.ReadFile(candidate + ".orig")
	require.NoError(t, err)
	assert.Equal(t, badCandidate, string(orig))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "crucible_sandbox_runs_total")
	assert.Contains(t, string(prom), "crucible_refinement_outcomes_total")
}

func TestRunCommand_OutputFlag(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	candidate := writeFile(t, dir, "add.sh", goodCandidate)
	suite := writeFile(t, dir, "suite.sh", addSuite)
	output := filepath.Join(dir, "out", "final.sh")

	_, err := executeCommand(t, runArgs(t, dir, "--no-agent", "--no-log-file", "--output", output, candidate, suite)...)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, goodCandidate, string(data))
}

func TestRunCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	suite := writeFile(t, dir, "suite.sh", addSuite)
	candidate := writeFile(t, dir, "add.sh", goodCandidate)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing candidate", runArgs(t, dir, "--no-log-file", filepath.Join(dir, "nope.sh"), suite), "failed to read candidate"},
		{"unknown toolchain", []string{"run", "--config", missingConfig(t), "--no-log-file", "--toolchain", "cobol", candidate, suite}, "unknown toolchain"},
		{"bad timeout", runArgs(t, dir, "--no-log-file", "--timeout", "soon", candidate, suite), "invalid timeout format"},
		{"bad iterations", runArgs(t, dir, "--no-log-file", "--max-iterations", "0", candidate, suite), "refiner.max_iterations"},
		{"wrong arg count", []string{"run", candidate}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}
