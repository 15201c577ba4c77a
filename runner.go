package ptfrunner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"

	"github.com/p4lang/ptf-runner/exitcodes"
	"github.com/p4lang/ptf-runner/metrics"
	"github.com/p4lang/ptf-runner/netns"
	"github.com/p4lang/ptf-runner/proc"
	"github.com/p4lang/ptf-runner/workdir"
)

const (
	// outputJoinTimeout bounds the wait for output forwarders during teardown.
	outputJoinTimeout = 2 * time.Second
	// teardownTimeout bounds the commands teardown itself runs; the run
	// context is usually cancelled by the time teardown starts.
	teardownTimeout = 30 * time.Second
)

// Runner drives one full test run through its lifecycle: scratch workspace,
// network namespace, virtual interfaces, the model and switchd services, the
// PTF suite, and ordered teardown. Teardown runs exactly once per run, no
// matter which phase the run stopped in.
type Runner struct {
	cfg *Config
	log log.Logger

	cmd *proc.CommandRunner
	sup *proc.Supervisor

	res    *RunResult
	ws     *workdir.Workspace
	ns     *netns.Manager
	nsName string

	model   *proc.Handle
	switchd *proc.Handle

	tearingDown  atomic.Bool
	teardownOnce sync.Once
}

func New(cfg *Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run executes the full lifecycle and always returns a result. An external
// interrupt records 128+signal and unwinds into the same teardown path.
func (r *Runner) Run(ctx context.Context) *RunResult {
	runID := uuid.New().String()
	r.res = newRunResult(runID, r.cfg.Program)
	r.log = r.cfg.Log.New("run_id", runID)
	r.cmd = proc.NewCommandRunner(r.log)
	r.sup = proc.NewSupervisor(r.log)

	ctx, span := otel.Tracer("ptf-runner").Start(ctx, "test-run")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	defer close(sigCh)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go r.watchSignals(sigCh, cancel)

	start := time.Now()
	r.log.Info("Starting test run", "program", r.cfg.Program)

	defer func() {
		r.teardown()
		r.res.Duration = time.Since(start)
		metrics.RecordRun(r.cfg.Program, runID, r.res.Code(), string(r.res.Reason()), r.res.Duration)
		r.printSummary()
		r.log.Info("Test run finished", "code", r.res.Code(), "duration", r.res.Duration)
	}()

	if !r.phase(ctx, "workspace", r.setupWorkspace) {
		return r.res
	}
	if !r.phase(ctx, "namespace", r.setupNamespace) {
		return r.res
	}
	if !r.phase(ctx, "interfaces", r.setupInterfaces) {
		return r.res
	}
	if !r.phase(ctx, "services", r.startServices) {
		return r.res
	}
	if !r.phase(ctx, "liveness", r.awaitLiveness) {
		return r.res
	}
	if !r.phase(ctx, "tests", r.runTests) {
		return r.res
	}
	r.phase(ctx, "postcheck", r.recheckLiveness)
	return r.res
}

// phase runs one lifecycle step, records its duration, and reports whether
// the run may continue. Cancellation is checked at every phase boundary so an
// interrupt unwinds into teardown without cutting a step in half.
func (r *Runner) phase(ctx context.Context, name string, fn func(context.Context) error) bool {
	if ctx.Err() != nil {
		r.log.Warn("run cancelled, skipping phase", "phase", name)
		return false
	}
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	r.res.addPhase(name, d, err)
	metrics.RecordPhase(r.cfg.Program, r.res.RunID, name, d)
	if err != nil {
		r.log.Error("phase failed, aborting run", "phase", name, "err", err)
		metrics.RecordErrorDetails("phase "+name, err)
		return false
	}
	return true
}

func (r *Runner) setupWorkspace(context.Context) error {
	ws, err := workdir.Allocate(r.cfg.KeepWorkdir)
	if err != nil {
		r.res.record(exitcodes.RuntimeErr, ReasonSetup)
		return err
	}
	r.ws = ws
	r.res.WorkdirPath = ws.Path
	r.nsName = netns.DeriveName(filepath.Base(ws.Path))
	r.ns = netns.NewManager(r.cmd, r.log, ws.Path, r.cfg.Env())
	r.log.Info("created scratch workspace", "path", ws.Path, "netns", r.nsName)
	return nil
}

func (r *Runner) setupNamespace(ctx context.Context) error {
	res := r.ns.Create(ctx, r.nsName)
	if !res.OK {
		r.recordCommandFailure(res, ReasonSetup)
		return fmt.Errorf("creating network namespace %s (exit code %d)", r.nsName, res.Code)
	}
	return nil
}

// setupInterfaces brings up loopback, then the veth pairs the model and the
// test suite talk over.
func (r *Runner) setupInterfaces(ctx context.Context) error {
	if res := r.ns.Exec(ctx, r.nsName, "ip", "link", "set", "dev", "lo", "up"); !res.OK {
		r.recordCommandFailure(res, ReasonSetup)
		return fmt.Errorf("bringing up loopback in %s (exit code %d)", r.nsName, res.Code)
	}
	r.log.Info("loopback up", "netns", r.nsName)

	ports := strconv.Itoa(r.cfg.VethPorts)
	if res := r.ns.Exec(ctx, r.nsName, "sudo", r.cfg.Scripts.VethSetup, ports); !res.OK {
		r.recordCommandFailure(res, ReasonSetup)
		return fmt.Errorf("veth setup in %s (exit code %d)", r.nsName, res.Code)
	}
	r.log.Info("veth setup complete", "netns", r.nsName, "ports", r.cfg.VethPorts)
	return nil
}

func (r *Runner) startServices(ctx context.Context) error {
	model, err := r.sup.Start(ctx, proc.Spec{
		Label: "model",
		Args:  r.ns.Wrap(r.nsName, r.cfg.Scripts.Model, "-p", r.cfg.Program, "--arch", r.cfg.Arch, "-q"),
		Dir:   r.ws.Path,
		Env:   r.cfg.Env(),
	}, proc.DefaultStartGrace)
	if err != nil {
		r.recordStartFailure(err)
		return err
	}
	r.model = model

	switchd, err := r.sup.Start(ctx, proc.Spec{
		Label: "switchd",
		Args:  r.ns.Wrap(r.nsName, r.cfg.Scripts.Switchd, "-p", r.cfg.Program, "--arch", r.cfg.Arch),
		Dir:   r.ws.Path,
		Env:   r.cfg.Env(),
	}, proc.DefaultStartGrace)
	if err != nil {
		r.recordStartFailure(err)
		return err
	}
	r.switchd = switchd
	return nil
}

// awaitLiveness waits out the startup grace period, then confirms both
// services survived it.
func (r *Runner) awaitLiveness(ctx context.Context) error {
	r.log.Info("waiting for model and switchd to initialize", "grace", r.cfg.StartupGrace)
	select {
	case <-time.After(r.cfg.StartupGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	ok := true
	for _, h := range []*proc.Handle{r.model, r.switchd} {
		if h.Alive() {
			continue
		}
		code, _ := h.ExitCode()
		r.log.Error("background service died before tests could start", "proc", h.Label, "code", code)
		r.res.record(failureCode(code), ReasonCrash)
		ok = false
	}
	if !ok {
		return errors.New("background services died before tests could start")
	}
	return nil
}

// runTests launches the suite inside the namespace and waits, bounded by the
// configured timeout. A failing or timed-out suite is recorded as the run
// result and returns nil so the post-run liveness check still happens; only
// a suite that never ran aborts here.
func (r *Runner) runTests(ctx context.Context) error {
	h, err := r.sup.Start(ctx, proc.Spec{
		Label: "tests",
		Args:  r.ns.Wrap(r.nsName, r.cfg.Scripts.Tests, "-p", r.cfg.Program, "--arch", r.cfg.Arch),
		Dir:   r.ws.Path,
		Env:   r.cfg.Env(),
	}, 0)
	if err != nil {
		r.recordStartFailure(err)
		return err
	}
	return r.waitForTests(ctx, h)
}

// waitForTests blocks until the suite finishes, bounded by the configured
// timeout. A timed-out suite records 124, never the generic failure code.
func (r *Runner) waitForTests(ctx context.Context, h *proc.Handle) error {
	r.log.Info("waiting for tests to complete", "timeout", r.cfg.TestTimeout)
	code, err := h.Wait(ctx, r.cfg.TestTimeout)
	switch {
	case errors.Is(err, proc.ErrWaitTimeout):
		r.log.Error("tests timed out", "timeout", r.cfg.TestTimeout)
		r.sup.Stop(h)
		r.res.record(exitcodes.Timeout, ReasonTimeout)
	case err != nil:
		// Interrupted; the signal watcher already recorded the result.
		r.sup.Stop(h)
		return err
	case code != 0:
		r.log.Error("tests failed", "code", code)
		r.res.record(failureCode(code), ReasonTests)
	default:
		r.log.Info("tests completed successfully")
	}
	return nil
}

// recheckLiveness flags services that died during the test run. An earlier
// failure keeps precedence.
func (r *Runner) recheckLiveness(context.Context) error {
	r.log.Info("checking background services after test run")
	for _, h := range []*proc.Handle{r.model, r.switchd} {
		if h == nil || h.Alive() {
			continue
		}
		code, _ := h.ExitCode()
		r.log.Error("background service died during the test run", "proc", h.Label, "code", code)
		r.res.record(exitcodes.Failure, ReasonCrash)
	}
	return nil
}

// teardown releases everything in strict order: processes, output streams,
// namespace, workspace. Every step is best-effort and nothing here can
// change an already-recorded result.
func (r *Runner) teardown() {
	r.teardownOnce.Do(func() {
		r.tearingDown.Store(true)
		start := time.Now()
		r.log.Info("tearing down")

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		r.sup.StopAll()
		r.sup.JoinOutput(outputJoinTimeout)

		if r.ns != nil && r.nsName != "" {
			r.ns.Delete(ctx, r.nsName)
		}

		if r.ws != nil {
			removed := r.ws.Finalize(r.log, r.res.Code() == exitcodes.Success)
			r.res.WorkdirRetained = !removed
		}
		r.res.addPhase("teardown", time.Since(start), nil)
	})
}

// watchSignals records 128+signal as the pending result and cancels the run
// so control flow unwinds into teardown. A signal received while teardown is
// already in progress is logged and dropped.
func (r *Runner) watchSignals(ch <-chan os.Signal, cancel context.CancelFunc) {
	for sig := range ch {
		if r.tearingDown.Load() {
			r.log.Warn("signal received during teardown, ignoring", "signal", sig.String())
			continue
		}
		r.log.Warn("received signal, unwinding into teardown", "signal", sig.String())
		code := exitcodes.SignalBase
		if s, ok := sig.(syscall.Signal); ok {
			code += int(s)
		}
		r.res.record(code, ReasonSignal)
		cancel()
	}
}

func (r *Runner) recordCommandFailure(res proc.Result, reason RunReason) {
	if res.NotFound {
		r.res.record(exitcodes.NotFound, ReasonNotFound)
		return
	}
	r.res.record(failureCode(res.Code), reason)
}

func (r *Runner) recordStartFailure(err error) {
	var nf *proc.NotFoundError
	var ee *proc.EarlyExitError
	switch {
	case errors.As(err, &nf):
		r.res.record(exitcodes.NotFound, ReasonNotFound)
	case errors.As(err, &ee):
		r.res.record(failureCode(ee.Code), ReasonCrash)
	default:
		r.res.record(exitcodes.Failure, ReasonSetup)
	}
}

// failureCode normalizes a process exit code for use as the run result: a
// process that died reporting zero still counts as a failure.
func failureCode(code int) int {
	if code <= 0 {
		return exitcodes.Failure
	}
	return code
}

// printSummary prints the per-phase results of the run to the console.
func (r *Runner) printSummary() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("PTF Run %s (%s)", r.cfg.Program, formatDuration(r.res.Duration)))

	t.AppendHeader(table.Row{"Phase", "Duration", "Status"})
	for _, p := range r.res.Phases() {
		status := "✓ ok"
		if p.Err != nil {
			status = "✗ failed"
		}
		t.AppendRow(table.Row{p.Name, formatDuration(p.Duration), status})
	}
	t.AppendFooter(table.Row{"RESULT", formatDuration(r.res.Duration), resultString(r.res)})
	if r.res.WorkdirRetained {
		t.AppendFooter(table.Row{"WORKDIR", "", r.res.WorkdirPath})
	}

	if r.res.Success() {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
}

func resultString(res *RunResult) string {
	if res.Success() {
		return "pass"
	}
	return fmt.Sprintf("fail (%s, exit code %d)", res.Reason(), res.Code())
}
