package proc

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func testRunner() *CommandRunner {
	return NewCommandRunner(log.NewLogger(log.DiscardHandler()))
}

func TestRunCapturesStdout(t *testing.T) {
	res := testRunner().Run(context.Background(), Spec{
		Args: []string{"echo", "hello"},
	})
	require.True(t, res.OK)
	require.Equal(t, 0, res.Code)
	require.Equal(t, "hello\n", res.Stdout)
}

func TestRunReportsExitCode(t *testing.T) {
	res := testRunner().Run(context.Background(), Spec{
		Args: []string{"sh", "-c", "exit 3"},
	})
	require.False(t, res.OK)
	require.Equal(t, 3, res.Code)
	require.False(t, res.NotFound)
}

func TestRunCapturesStderr(t *testing.T) {
	res := testRunner().Run(context.Background(), Spec{
		Args: []string{"sh", "-c", "echo oops >&2; exit 1"},
	})
	require.False(t, res.OK)
	require.Equal(t, 1, res.Code)
	require.Contains(t, res.Stderr, "oops")
}

func TestRunMissingExecutable(t *testing.T) {
	res := testRunner().Run(context.Background(), Spec{
		Args: []string{"definitely-not-a-real-binary-xyz"},
	})
	require.False(t, res.OK)
	require.True(t, res.NotFound)
	require.Equal(t, 127, res.Code)
}

func TestRunEmptyCommand(t *testing.T) {
	res := testRunner().Run(context.Background(), Spec{})
	require.False(t, res.OK)
	require.Equal(t, 1, res.Code)
}

func TestRunHonorsWorkingDir(t *testing.T) {
	dir := t.TempDir()
	res := testRunner().Run(context.Background(), Spec{
		Args: []string{"pwd"},
		Dir:  dir,
	})
	require.True(t, res.OK)
	require.Contains(t, res.Stdout, dir)
}

func TestSpecLabel(t *testing.T) {
	require.Equal(t, "veth", Spec{Label: "veth", Args: []string{"sh"}}.label())
	require.Equal(t, "sh", Spec{Args: []string{"sh", "-c", "true"}}.label())
	require.Equal(t, "?", Spec{}.label())
}
