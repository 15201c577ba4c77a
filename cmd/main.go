package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	ptfrunner "github.com/p4lang/ptf-runner"
	"github.com/p4lang/ptf-runner/exitcodes"
	"github.com/p4lang/ptf-runner/flags"
	"github.com/p4lang/ptf-runner/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "ptf-runner"
	app.Usage = "Tofino PTF Test Runner"
	app.Description = "ptf-runner brings up the Tofino model and switchd inside an isolated network namespace and runs a PTF suite against them"
	app.ArgsUsage = "<p4-program>"
	app.Flags = flags.Flags
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if ptfrunner.IsRuntimeError(err) {
				// Configuration and infrastructure errors exit with code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Failure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Warn("Failed to setup open telemetry", "message", err)
	} else {
		defer otelShutdown()
	}

	// Start server
	svc := service.New()
	svc.Start(context.Background())
	defer svc.Shutdown()

	app.Action = func(c *cli.Context) error {
		return run(c, svc)
	}

	// Start CLI
	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(c *cli.Context, svc *service.Service) error {
	logCfg := oplog.ReadCLIConfig(c)
	if c.Bool(flags.Verbose.Name) {
		logCfg.Level = log.LevelDebug
	}
	logger := oplog.NewLogger(oplog.AppOut(c), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())

	svc.SetStatus(service.StatusRunning)
	defer svc.SetStatus(service.StatusDone)

	cfg, err := ptfrunner.NewConfig(c, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return ptfrunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	res := ptfrunner.New(cfg).Run(c.Context)
	if !res.Success() {
		return cli.Exit(res.String(), res.Code())
	}
	return nil
}
