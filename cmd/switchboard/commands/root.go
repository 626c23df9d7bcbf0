// Package commands implements the switchboard command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/switchboard/internal/app"
	"github.com/florianilch/switchboard/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit, os.Stdin, os.Stdout).Run(ctx, args)
}

func newRootCommand(version, commit string, stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "switchboard",
		Usage:   "Serve one chat backend through the OpenAI and Anthropic APIs",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Reader:  stdin,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(app.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
		},
		Commands: []*cli.Command{
			startCommand(version),
			authCommand(),
			countTokensCommand(),
		},
	}
}

// loadConfig layers the --config file, the environment and explicitly set flags.
func loadConfig(cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := map[string]any{}
	if cmd.IsSet("log-level") {
		overrides["log.level"] = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		overrides["log.format"] = cmd.String("log-format")
	}
	if cmd.IsSet("address") {
		overrides["server.address"] = cmd.String("address")
	}
	if cmd.IsSet("backend") {
		overrides["backend.kind"] = cmd.String("backend")
	}
	if cmd.IsSet("model") {
		overrides["backend.model"] = cmd.String("model")
	}

	return app.LoadConfig(cmd.String("config"), environ, overrides)
}

// instrument installs the process logger described by cfg.
func instrument(ctx context.Context, cfg *app.Config, version string) (func(context.Context) error, error) {
	shutdown, err := observability.Instrument(ctx, observability.Config{
		Level:    cfg.Log.SlogLevel(),
		Format:   cfg.Log.Format,
		Export:   cfg.Log.Export,
		Endpoint: cfg.Log.Endpoint,
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return shutdown, nil
}
