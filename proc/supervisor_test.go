package proc

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func testSupervisor() *Supervisor {
	return NewSupervisor(log.NewLogger(log.DiscardHandler()))
}

func TestStartAndStop(t *testing.T) {
	s := testSupervisor()
	h, err := s.Start(context.Background(), Spec{
		Label: "sleeper",
		Args:  []string{"sleep", "30"},
	}, 0)
	require.NoError(t, err)
	require.True(t, h.Alive())
	require.False(t, h.Started.IsZero())

	_, running := h.ExitCode()
	require.False(t, running)

	s.Stop(h)
	require.False(t, h.Alive())

	// Stopping again is a no-op.
	s.Stop(h)
	s.Stop(nil)
}

func TestStartEarlyExit(t *testing.T) {
	s := testSupervisor()
	_, err := s.Start(context.Background(), Spec{
		Label: "flaky",
		Args:  []string{"sh", "-c", "exit 7"},
	}, 500*time.Millisecond)
	require.Error(t, err)

	var ee *EarlyExitError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, 7, ee.Code)
	require.Equal(t, "flaky", ee.Label)
}

func TestStartMissingExecutable(t *testing.T) {
	s := testSupervisor()
	_, err := s.Start(context.Background(), Spec{
		Args: []string{"definitely-not-a-real-binary-xyz"},
	}, 0)
	require.Error(t, err)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "definitely-not-a-real-binary-xyz", nf.Name)
}

func TestStartCancelledContext(t *testing.T) {
	s := testSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Start(ctx, Spec{Args: []string{"sleep", "30"}}, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitTimeout(t *testing.T) {
	s := testSupervisor()
	h, err := s.Start(context.Background(), Spec{
		Args: []string{"sleep", "30"},
	}, 0)
	require.NoError(t, err)
	defer s.StopAll()

	_, err = h.Wait(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrWaitTimeout)
	require.True(t, h.Alive())
}

func TestWaitReturnsExitCode(t *testing.T) {
	s := testSupervisor()
	h, err := s.Start(context.Background(), Spec{
		Args: []string{"sh", "-c", "exit 5"},
	}, 0)
	require.NoError(t, err)

	code, err := h.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, code)

	got, done := h.ExitCode()
	require.True(t, done)
	require.Equal(t, 5, got)
}

func TestStopAllReverseOrder(t *testing.T) {
	s := testSupervisor()
	first, err := s.Start(context.Background(), Spec{Args: []string{"sleep", "30"}}, 0)
	require.NoError(t, err)
	second, err := s.Start(context.Background(), Spec{Args: []string{"sleep", "30"}}, 0)
	require.NoError(t, err)

	s.StopAll()
	require.False(t, first.Alive())
	require.False(t, second.Alive())

	// A second StopAll has nothing left to stop.
	s.StopAll()
}

func TestJoinOutputDrains(t *testing.T) {
	s := testSupervisor()
	h, err := s.Start(context.Background(), Spec{
		Args: []string{"echo", "hello"},
	}, 0)
	require.NoError(t, err)

	_, err = h.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	s.JoinOutput(time.Second)
}
