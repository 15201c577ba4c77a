package proc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	// DefaultStartGrace is how long Start watches a fresh process for an
	// immediate exit before declaring it started.
	DefaultStartGrace = 500 * time.Millisecond

	// termWait bounds the graceful-termination window before Stop escalates
	// to SIGKILL; killWait bounds the wait after SIGKILL.
	termWait = 2 * time.Second
	killWait = time.Second
)

// ErrWaitTimeout reports that a bounded Wait elapsed before the process
// exited.
var ErrWaitTimeout = errors.New("timed out waiting for process to exit")

// NotFoundError reports that a command's executable could not be found.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("executable not found: %s", e.Name)
}

// EarlyExitError reports that a background process exited during its startup
// grace window.
type EarlyExitError struct {
	Label string
	Code  int
}

func (e *EarlyExitError) Error() string {
	return fmt.Sprintf("process %s exited immediately with code %d", e.Label, e.Code)
}

// Handle tracks one background process managed by the Supervisor.
type Handle struct {
	Label   string
	Started time.Time

	cmd  *exec.Cmd
	fwd  *OutputForwarder
	done chan struct{}

	// exitCode is written once by the wait goroutine before done is closed;
	// readers must observe done first.
	exitCode int
}

// Alive reports whether the process is still running without blocking.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the process exit code. The second return is false while
// the process is still running.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until the process exits, the timeout elapses, or ctx is
// cancelled. On timeout it returns ErrWaitTimeout; the process is left
// running for the caller to stop.
func (h *Handle) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.exitCode, nil
	case <-timer.C:
		return 0, ErrWaitTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Supervisor starts long-lived background processes, tracks them, and
// terminates them on demand. Each process gets an OutputForwarder for its
// combined stdout/stderr stream.
type Supervisor struct {
	log log.Logger

	mu    sync.Mutex
	procs []*Handle
	fwds  []*OutputForwarder
}

func NewSupervisor(lg log.Logger) *Supervisor {
	return &Supervisor{log: lg}
}

// Start spawns spec as a background process. When grace is positive, Start
// watches the process for that long and fails with an EarlyExitError if it
// exits within the window.
//
// The child writes into an OS pipe directly, so a lingering grandchild
// holding the write end open delays the forwarder, never the process wait.
func (s *Supervisor) Start(ctx context.Context, spec Spec, grace time.Duration) (*Handle, error) {
	if len(spec.Args) == 0 {
		return nil, errors.New("empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Info("starting background process",
		"proc", spec.label(), "cmd", strings.Join(spec.Args, " "), "dir", spec.Dir)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating output pipe for %s: %w", spec.label(), err)
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Name: spec.Args[0]}
		}
		return nil, fmt.Errorf("starting %s: %w", spec.label(), err)
	}
	// The child owns the write end now.
	pw.Close()

	h := &Handle{
		Label:   spec.label(),
		Started: time.Now(),
		cmd:     cmd,
		fwd:     ForwardOutput(s.log, spec.label(), pr),
		done:    make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var ee *exec.ExitError
			if errors.As(err, &ee) {
				code = ee.ExitCode()
			} else {
				code = 1
			}
		}
		h.exitCode = code
		close(h.done)
	}()

	s.mu.Lock()
	s.procs = append(s.procs, h)
	s.fwds = append(s.fwds, h.fwd)
	s.mu.Unlock()

	if grace > 0 {
		select {
		case <-h.done:
			s.log.Error("background process exited during startup",
				"proc", h.Label, "code", h.exitCode)
			return nil, &EarlyExitError{Label: h.Label, Code: h.exitCode}
		case <-time.After(grace):
		}
	}
	s.log.Info("background process started", "proc", h.Label, "pid", cmd.Process.Pid)
	return h, nil
}

// Stop terminates h: graceful signal first with a bounded wait, then SIGKILL.
// It is a no-op if the process has already exited, and never returns an
// error; termination problems are logged.
func (s *Supervisor) Stop(h *Handle) {
	if h == nil || !h.Alive() {
		return
	}
	pid := h.cmd.Process.Pid
	s.log.Info("stopping process", "proc", h.Label, "pid", pid, "uptime", time.Since(h.Started))
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.log.Warn("failed to signal process", "proc", h.Label, "pid", pid, "err", err)
	}
	select {
	case <-h.done:
		s.log.Info("process terminated gracefully", "proc", h.Label, "pid", pid)
		return
	case <-time.After(termWait):
	}

	s.log.Warn("process did not exit in time, killing", "proc", h.Label, "pid", pid)
	if err := h.cmd.Process.Kill(); err != nil {
		s.log.Error("failed to kill process", "proc", h.Label, "pid", pid, "err", err)
		return
	}
	select {
	case <-h.done:
		s.log.Info("process killed", "proc", h.Label, "pid", pid)
	case <-time.After(killWait):
		s.log.Error("process survived SIGKILL", "proc", h.Label, "pid", pid)
	}
}

// StopAll stops every tracked process in reverse start order and forgets
// them.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	procs := s.procs
	s.procs = nil
	s.mu.Unlock()

	for i := len(procs) - 1; i >= 0; i-- {
		s.Stop(procs[i])
	}
}

// JoinOutput waits for every output forwarder to drain, bounded by timeout
// overall, and forgets them.
func (s *Supervisor) JoinOutput(timeout time.Duration) {
	s.mu.Lock()
	fwds := s.fwds
	s.fwds = nil
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for _, f := range fwds {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		f.Wait(remaining)
	}
}
