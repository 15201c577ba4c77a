package main

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/p4lang/ptf-runner/deps"
)

const envVarPrefix = "PTF_DEPS"

var (
	manifestFlag = &cli.StringFlag{
		Name:    "manifest",
		Usage:   "Path to the dependency manifest yaml",
		Value:   "dependencies.yaml",
		EnvVars: opservice.PrefixEnvVar(envVarPrefix, "MANIFEST"),
	}
	installDirFlag = &cli.StringFlag{
		Name:     "install-dir",
		Usage:    "Prefix to install dependencies under",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(envVarPrefix, "INSTALL_DIR"),
	}
	workDirFlag = &cli.StringFlag{
		Name:    "workdir",
		Usage:   "Directory for downloads and build trees",
		Value:   os.TempDir(),
		EnvVars: opservice.PrefixEnvVar(envVarPrefix, "WORKDIR"),
	}
	jobsFlag = &cli.IntFlag{
		Name:    "jobs",
		Usage:   "Parallel build jobs",
		Value:   runtime.NumCPU(),
		EnvVars: opservice.PrefixEnvVar(envVarPrefix, "JOBS"),
	}
	forceFlag = &cli.BoolFlag{
		Name:    "force",
		Usage:   "Rebuild even when pkg-config reports the dependency installed",
		EnvVars: opservice.PrefixEnvVar(envVarPrefix, "FORCE"),
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "ptf-deps"
	app.Usage = "Source Dependency Installer"
	app.Description = "ptf-deps builds and installs third-party source dependencies listed in a yaml manifest"
	app.ArgsUsage = "[dependency...]"
	app.Flags = append([]cli.Flag{
		manifestFlag, installDirFlag, workDirFlag, jobsFlag, forceFlag,
	}, oplog.CLIFlags(envVarPrefix)...)
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(c *cli.Context) error {
	logCfg := oplog.ReadCLIConfig(c)
	logger := oplog.NewLogger(oplog.AppOut(c), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())

	manifest, err := deps.LoadManifest(c.String(manifestFlag.Name))
	if err != nil {
		return err
	}

	names := c.Args().Slice()
	if len(names) == 0 {
		// Install everything, in a stable order.
		for name := range manifest {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	installer := deps.NewInstaller(
		manifest,
		c.String(installDirFlag.Name),
		c.String(workDirFlag.Name),
		c.Int(jobsFlag.Name),
		c.Bool(forceFlag.Name),
		logger,
	)
	for _, name := range names {
		if err := installer.Install(c.Context, name); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}
