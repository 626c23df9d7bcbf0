package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/switchboard/internal/app"
	"github.com/florianilch/switchboard/internal/backend"
	"github.com/florianilch/switchboard/internal/unified"
)

func countTokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "count-tokens",
		Usage:     "Print the input token count of stdin as one user message",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "backend",
				Usage: "backend kind (claude|lorem)",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "backend model name",
			},
		},
		Action: countTokensAction,
	}
}

func countTokensAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	model, err := app.NewBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	input, err := io.ReadAll(cmd.Root().Reader)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	msgs := unified.AppendNonEmpty(nil, unified.NewMessage(unified.RoleUser, unified.Text{Value: string(input)}))
	n, err := backend.CountMessages(ctx, model, msgs)
	if err != nil {
		return fmt.Errorf("failed to count tokens: %w", err)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, n)
	return err
}
