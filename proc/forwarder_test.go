package proc

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestForwardOutputStripsAnsi(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewLogger(log.JSONHandler(&buf))

	pr, pw := io.Pipe()
	f := ForwardOutput(lg, "model", pr)

	_, err := pw.Write([]byte("plain line\n\x1b[31mred line\x1b[0m\n"))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	require.True(t, f.Wait(time.Second))
	out := buf.String()
	require.Contains(t, out, "plain line")
	require.Contains(t, out, "red line")
	require.NotContains(t, out, "31m")
	require.Contains(t, out, "model")
}

func TestForwardOutputWaitTimeout(t *testing.T) {
	lg := log.NewLogger(log.DiscardHandler())

	pr, pw := io.Pipe()
	f := ForwardOutput(lg, "switchd", pr)
	defer pw.Close()

	require.False(t, f.Wait(50*time.Millisecond))
}
