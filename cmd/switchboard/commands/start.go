package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/switchboard/internal/app"
)

func startCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen address (host:port)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "backend kind (claude|lorem)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "backend model name",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return startAction(ctx, cmd, version)
		},
	}
}

func startAction(ctx context.Context, cmd *cli.Command, version string) error {
	cfg, err := loadConfig(cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := instrument(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownLogs(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting",
		"version", version,
		"address", cfg.Server.Address,
		"backend", cfg.Backend.Kind,
		"model", cfg.Backend.Model,
		"auth_required", len(cfg.Server.APIKeys) > 0,
	)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
