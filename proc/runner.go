// Package proc executes the external commands a test run is made of: one-shot
// synchronous commands, long-lived background services, and the forwarding of
// their output into the structured log.
package proc

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Spec describes a single external command invocation.
type Spec struct {
	Label string   // short name used in logs; defaults to the executable name
	Args  []string // argv, Args[0] is the executable
	Dir   string   // working directory
	Env   []string // full environment; nil inherits the parent's
}

func (s Spec) label() string {
	if s.Label != "" {
		return s.Label
	}
	if len(s.Args) > 0 {
		return s.Args[0]
	}
	return "?"
}

// Result reports the outcome of a synchronous command run. Failures are
// reported here rather than as errors so callers can propagate the effective
// process exit code.
type Result struct {
	OK       bool
	Code     int
	NotFound bool // the executable could not be found; Code is 127
	Stdout   string
	Stderr   string
}

// CommandRunner executes commands to completion and captures their output.
type CommandRunner struct {
	log log.Logger
}

func NewCommandRunner(lg log.Logger) *CommandRunner {
	return &CommandRunner{log: lg}
}

// Run executes spec synchronously. It never returns an error: every failure
// mode, including a missing executable, is reported through the Result.
func (r *CommandRunner) Run(ctx context.Context, spec Spec) Result {
	if len(spec.Args) == 0 {
		r.log.Error("refusing to run empty command", "label", spec.label())
		return Result{Code: 1}
	}
	r.log.Debug("running command", "cmd", strings.Join(spec.Args, " "), "dir", spec.Dir)

	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		res.OK = true
		if out := strings.TrimSpace(res.Stdout); out != "" {
			r.log.Debug("command stdout", "cmd", spec.label(), "output", out)
		}
		if out := strings.TrimSpace(res.Stderr); out != "" {
			r.log.Warn("command stderr", "cmd", spec.label(), "output", out)
		}
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		res.Code = 127
		res.NotFound = true
		r.log.Error("cannot execute, executable not found", "cmd", spec.Args[0])
	default:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.Code = ee.ExitCode()
		}
		if res.Code <= 0 {
			res.Code = 1
		}
		r.log.Error("command failed", "cmd", spec.label(), "code", res.Code, "err", err)
		if out := strings.TrimSpace(res.Stderr); out != "" {
			r.log.Error("command stderr", "cmd", spec.label(), "output", out)
		}
		if out := strings.TrimSpace(res.Stdout); out != "" {
			r.log.Error("command stdout", "cmd", spec.label(), "output", out)
		}
	}
	return res
}
