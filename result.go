package ptfrunner

import (
	"fmt"
	"sync"
	"time"
)

// RunReason classifies how a run reached its final result.
type RunReason string

const (
	ReasonNone     RunReason = ""
	ReasonSetup    RunReason = "setup"
	ReasonCrash    RunReason = "crash"
	ReasonTests    RunReason = "tests"
	ReasonTimeout  RunReason = "timeout"
	ReasonSignal   RunReason = "signal"
	ReasonNotFound RunReason = "not-found"
)

// PhaseResult records one lifecycle phase for the end-of-run summary.
type PhaseResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// RunResult is the single outcome of a test run. The first nonzero exit code
// recorded wins; later failures, including anything that happens during
// teardown, cannot override it.
type RunResult struct {
	RunID    string
	Program  string
	Duration time.Duration

	WorkdirPath     string
	WorkdirRetained bool

	mu     sync.Mutex
	code   int
	reason RunReason
	phases []PhaseResult
}

func newRunResult(runID, program string) *RunResult {
	return &RunResult{RunID: runID, Program: program}
}

// record stores a failure. Zero codes and repeat failures are ignored.
func (r *RunResult) record(code int, reason RunReason) {
	if code == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == 0 {
		r.code = code
		r.reason = reason
	}
}

// Code returns the effective process exit code for the run.
func (r *RunResult) Code() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// Reason returns the recorded failure classification.
func (r *RunResult) Reason() RunReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Success reports whether the run completed cleanly.
func (r *RunResult) Success() bool {
	return r.Code() == 0
}

func (r *RunResult) addPhase(name string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, PhaseResult{Name: name, Duration: d, Err: err})
}

// Phases returns a copy of the recorded phase results in execution order.
func (r *RunResult) Phases() []PhaseResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PhaseResult, len(r.phases))
	copy(out, r.phases)
	return out
}

func (r *RunResult) String() string {
	var s string
	if r.Success() {
		s = fmt.Sprintf("run %s passed (%s)", r.RunID, formatDuration(r.Duration))
	} else {
		s = fmt.Sprintf("run %s failed (%s, exit code %d)", r.RunID, r.Reason(), r.Code())
	}
	if r.WorkdirRetained {
		s += fmt.Sprintf(", scratch dir kept at %s", r.WorkdirPath)
	}
	return s
}

// formatDuration formats the duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
