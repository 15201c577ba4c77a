package ptfrunner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResultFirstFailureWins(t *testing.T) {
	res := newRunResult("run-1", "switch")
	require.True(t, res.Success())

	res.record(124, ReasonTimeout)
	res.record(1, ReasonTests)

	require.Equal(t, 124, res.Code())
	require.Equal(t, ReasonTimeout, res.Reason())
	require.False(t, res.Success())
}

func TestResultIgnoresZeroCode(t *testing.T) {
	res := newRunResult("run-1", "switch")
	res.record(0, ReasonTests)
	require.True(t, res.Success())
	require.Equal(t, ReasonNone, res.Reason())
}

func TestResultPhasesInOrder(t *testing.T) {
	res := newRunResult("run-1", "switch")
	res.addPhase("workspace", time.Second, nil)
	res.addPhase("namespace", 2*time.Second, errors.New("boom"))

	phases := res.Phases()
	require.Len(t, phases, 2)
	require.Equal(t, "workspace", phases[0].Name)
	require.NoError(t, phases[0].Err)
	require.Equal(t, "namespace", phases[1].Name)
	require.Error(t, phases[1].Err)
}

func TestResultString(t *testing.T) {
	res := newRunResult("run-1", "switch")
	res.Duration = 1500 * time.Millisecond
	require.Contains(t, res.String(), "passed")
	require.Contains(t, res.String(), "1.5s")

	res.record(124, ReasonTimeout)
	require.Contains(t, res.String(), "exit code 124")
	require.Contains(t, res.String(), "timeout")
}

func TestResultStringMentionsRetainedWorkdir(t *testing.T) {
	res := newRunResult("run-1", "switch")
	res.record(1, ReasonTests)
	res.WorkdirPath = "/tmp/ptf_runner_abc123"
	res.WorkdirRetained = true

	require.Contains(t, res.String(), "kept at /tmp/ptf_runner_abc123")
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	require.Equal(t, "0.0s", formatDuration(0))
}
