// Package cli is the daemon's command-line entrypoint: flag parsing,
// config bootstrap, signal handling and the foreground run loop, grounded
// on runsc/cli's own subcommand-based Main, scaled down to the two
// commands this daemon actually needs.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/bowlofstew/porto/internal/daemon"
	"github.com/bowlofstew/porto/internal/daemonconfig"
	"github.com/bowlofstew/porto/pkg/plog"
)

const defaultConfigPath = "/etc/portod.conf"

var log = plog.For("cli")

// Main is the process entrypoint, called from cmd/portod once the helper
// re-exec dispatch in cmd/portod/main.go has ruled out the launch-helper
// path.
func Main() int {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&runCommand{}, "")
	subcommands.Register(&checkConfigCommand{}, "")

	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return int(subcommands.Execute(ctx))
}

func loadConfig(path string) (daemonconfig.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return daemonconfig.Default(), nil
	}
	return daemonconfig.Load(path)
}

// runCommand is the default, and usual, way to invoke this binary: load
// the config, restore persisted state, and run the daemon loop in the
// foreground until a signal arrives.
type runCommand struct {
	configPath string
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "run the container daemon in the foreground" }
func (*runCommand) Usage() string {
	return "run [-config path]\n  Runs the daemon in the foreground until SIGINT/SIGTERM.\n"
}

func (c *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to the daemon's TOML config file")
}

func (c *runCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		log.WithError(err).Error("load config")
		return subcommands.ExitFailure
	}
	if err := plog.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, keeping default")
	}
	if cfg.LogFile != "" {
		lf, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Error("open log file")
			return subcommands.ExitFailure
		}
		defer lf.Close()
		plog.SetOutput(lf)
	}

	d := daemon.New(cfg)
	if err := d.Restore(ctx, os.Getpid()); err != nil {
		log.WithError(err).Error("restore")
		return subcommands.ExitFailure
	}

	if err := d.Run(ctx); err != nil {
		log.WithError(err).Error("daemon run loop exited with error")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// checkConfigCommand loads and prints the effective configuration without
// starting the daemon, a diagnostic counterpart to the shim's own
// loadConfig used by operators validating a config file before rollout.
type checkConfigCommand struct {
	configPath string
}

func (*checkConfigCommand) Name() string     { return "check-config" }
func (*checkConfigCommand) Synopsis() string { return "validate a config file and print the effective config" }
func (*checkConfigCommand) Usage() string    { return "check-config [-config path]\n" }

func (c *checkConfigCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to the daemon's TOML config file")
}

func (c *checkConfigCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%+v\n", cfg)
	return subcommands.ExitSuccess
}
