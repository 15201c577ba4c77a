// Package ptfrunner drives a full PTF test run: it provisions a network
// namespace, launches the Tofino model and switchd inside it, runs the test
// suite against them with a bounded timeout, and guarantees ordered teardown.
package ptfrunner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/p4lang/ptf-runner/flags"
)

// Config holds a validated run configuration.
type Config struct {
	Program      string // name of the P4 program under test
	SDEInstall   string
	SDE          string
	Arch         string
	VethPorts    int
	TestTimeout  time.Duration
	StartupGrace time.Duration
	KeepWorkdir  bool
	Scripts      Scripts
	Log          log.Logger
}

// Scripts holds the resolved collaborator script paths. The runner only
// needs their command lines; each is expected to exit 0 on success.
type Scripts struct {
	VethSetup string // $SDE_INSTALL/bin/veth_setup.sh
	Model     string // $SDE/run_tofino_model.sh
	Switchd   string // $SDE/run_switchd.sh
	Tests     string // $SDE/run_p4_tests.sh
}

// NewConfig creates a new Config from the cli context. All path validation
// happens here so every failure in this function is a configuration error,
// raised before any run resource is acquired.
func NewConfig(ctx *cli.Context, lg log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	program := ctx.Args().First()
	if program == "" {
		return nil, errors.New("a P4 program name is required")
	}
	if ctx.NArg() > 1 {
		return nil, fmt.Errorf("unexpected extra arguments: %v", ctx.Args().Slice()[1:])
	}

	sdeInstall, err := resolveDir("SDE_INSTALL", ctx.String(flags.SDEInstall.Name))
	if err != nil {
		return nil, err
	}
	sde, err := resolveDir("SDE", ctx.String(flags.SDE.Name))
	if err != nil {
		return nil, err
	}

	scripts, err := resolveScripts(sdeInstall, sde)
	if err != nil {
		return nil, err
	}

	testTimeout := ctx.Duration(flags.TestTimeout.Name)
	if testTimeout <= 0 {
		return nil, fmt.Errorf("test timeout must be positive, got %s", testTimeout)
	}
	vethPorts := ctx.Int(flags.VethPorts.Name)
	if vethPorts <= 0 {
		return nil, fmt.Errorf("veth port count must be positive, got %d", vethPorts)
	}

	lg.Info("Using P4 program", "program", program)
	lg.Info("Using SDE install path", "path", sdeInstall)
	lg.Info("Using SDE path", "path", sde)

	return &Config{
		Program:      program,
		SDEInstall:   sdeInstall,
		SDE:          sde,
		Arch:         ctx.String(flags.Arch.Name),
		VethPorts:    vethPorts,
		TestTimeout:  testTimeout,
		StartupGrace: ctx.Duration(flags.StartupGrace.Name),
		KeepWorkdir:  ctx.Bool(flags.KeepWorkdir.Name),
		Scripts:      scripts,
		Log:          lg,
	}, nil
}

// Env returns the run environment: the parent environment with the SDE paths
// applied.
func (c *Config) Env() []string {
	return append(os.Environ(),
		"SDE_INSTALL="+c.SDEInstall,
		"SDE="+c.SDE,
	)
}

func resolveDir(name, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s not specified", name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s path %q: %w", name, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s dir not found: %s", name, abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s path is not a directory: %s", name, abs)
	}
	return abs, nil
}

// resolveScripts locates the collaborator scripts and verifies they exist
// before any resource is acquired. Every missing or non-executable script is
// reported, not just the first. veth_setup.sh runs under sudo, so only the
// launchers need the exec bit.
func resolveScripts(sdeInstall, sde string) (Scripts, error) {
	s := Scripts{
		VethSetup: filepath.Join(sdeInstall, "bin", "veth_setup.sh"),
		Model:     filepath.Join(sde, "run_tofino_model.sh"),
		Switchd:   filepath.Join(sde, "run_switchd.sh"),
		Tests:     filepath.Join(sde, "run_p4_tests.sh"),
	}
	checks := []struct {
		path     string
		needExec bool
	}{
		{s.VethSetup, false},
		{s.Model, true},
		{s.Switchd, true},
		{s.Tests, true},
	}
	var errs []error
	for _, c := range checks {
		info, err := os.Stat(c.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("script not found: %s", c.path))
			continue
		}
		if c.needExec && info.Mode()&0o111 == 0 {
			errs = append(errs, fmt.Errorf("script not executable: %s", c.path))
		}
	}
	if len(errs) > 0 {
		return Scripts{}, errors.Join(errs...)
	}
	return s, nil
}
