package proc

import (
	"bufio"
	"io"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
)

// maxLineSize bounds a single forwarded output line. Switchd dumps table
// state in very long lines.
const maxLineSize = 1024 * 1024

// OutputForwarder drains a process output stream line by line into the
// logger, labeled with the process name. It runs on its own goroutine and
// stops when the stream closes.
type OutputForwarder struct {
	log  log.Logger
	done chan struct{}
}

// ForwardOutput starts draining r in the background. ANSI escape sequences
// are stripped so interactive-minded tools don't garble the log.
func ForwardOutput(lg log.Logger, label string, r io.ReadCloser) *OutputForwarder {
	f := &OutputForwarder{
		log:  lg.New("proc", label),
		done: make(chan struct{}),
	}
	go f.drain(r)
	return f
}

func (f *OutputForwarder) drain(r io.ReadCloser) {
	defer close(f.done)
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		f.log.Info(stripansi.Strip(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		f.log.Warn("output stream closed unexpectedly", "err", err)
	}
}

// Wait blocks until the stream has been fully drained or the timeout elapses.
// It reports whether the stream was drained in time.
func (f *OutputForwarder) Wait(timeout time.Duration) bool {
	select {
	case <-f.done:
		return true
	case <-time.After(timeout):
		f.log.Warn("timed out waiting for output stream to drain")
		return false
	}
}
