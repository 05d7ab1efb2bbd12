package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/crucible/internal/sandbox"
)

// shellArith evaluates $1 as shell arithmetic.
const shellArith = `sh -c 'echo $(($1))' eval`

func TestEvalCommand(t *testing.T) {
	requireShell(t)

	out, err := executeCommand(t, "eval", "--config", missingConfig(t), "--command", shellArith, "6 * 7")
	require.NoError(t, err)
	assert.Equal(t, "42", strings.TrimSpace(out))
}

func TestEvalCommand_Timeout(t *testing.T) {
	requireShell(t)

	_, err := executeCommand(t, "eval", "--config", missingConfig(t),
		"--command", `sh -c 'sleep 5' eval`, "--eval-timeout", "100ms", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sandbox.ErrEvalTimeout), err.Error())
}

func TestEvalCommand_Failure(t *testing.T) {
	requireShell(t)

	_, err := executeCommand(t, "eval", "--config", missingConfig(t),
		"--command", `sh -c 'echo "NameError: x" >&2; exit 2' eval`, "x")
	require.Error(t, err)
	var evalErr *sandbox.EvalError
	require.True(t, errors.As(err, &evalErr), err.Error())
	assert.Equal(t, 2, evalErr.ExitCode)
	assert.Equal(t, "NameError: x", evalErr.Detail)
}

func TestEvalCommand_BadTimeout(t *testing.T) {
	_, err := executeCommand(t, "eval", "--config", missingConfig(t), "--eval-timeout", "later", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout format")
}
