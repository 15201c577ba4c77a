package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "PTF_RUNNER"

var (
	// SDEInstall and SDE deliberately read the bare SDE_INSTALL/SDE
	// environment variables that every SDE workflow already exports.
	SDEInstall = &cli.StringFlag{
		Name:    "sde-install",
		EnvVars: []string{"SDE_INSTALL"},
		Usage:   "Path to the SDE install tree (holds bin/veth_setup.sh)",
	}
	SDE = &cli.StringFlag{
		Name:    "sde",
		EnvVars: []string{"SDE"},
		Usage:   "Path to the SDE source tree (holds the run_*.sh launchers)",
	}
	Arch = &cli.StringFlag{
		Name:    "arch",
		Value:   "tofino",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARCH"),
		Usage:   "Target architecture passed to the model, switchd and test launchers",
	}
	TestTimeout = &cli.DurationFlag{
		Name:    "test-timeout",
		Value:   3 * time.Hour,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_TIMEOUT"),
		Usage:   "Upper bound on the PTF test run; the run exits 124 when exceeded",
	}
	StartupGrace = &cli.DurationFlag{
		Name:    "startup-grace",
		Value:   time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STARTUP_GRACE"),
		Usage:   "How long to wait before confirming the model and switchd are still alive",
	}
	VethPorts = &cli.IntFlag{
		Name:    "veth-ports",
		Value:   128,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VETH_PORTS"),
		Usage:   "Number of veth pairs veth_setup.sh creates inside the namespace",
	}
	KeepWorkdir = &cli.BoolFlag{
		Name:    "keep-workdir",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_WORKDIR"),
		Usage:   "Do not delete the scratch directory after a clean run",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable debug logging",
	}
)

var requiredFlags = []cli.Flag{
	SDEInstall,
	SDE,
}

var optionalFlags = []cli.Flag{
	Arch,
	TestTimeout,
	StartupGrace,
	VethPorts,
	KeepWorkdir,
	Verbose,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
