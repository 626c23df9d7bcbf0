package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/switchboard/internal/app"
	"github.com/florianilch/switchboard/internal/tokensource"
)

// authCommand returns the 'auth' subcommand for managing backend credentials.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage backend credentials",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Save the Anthropic API key to the configured storage",
				Action: authLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "Clear the Anthropic API key from the configured storage",
				Action: authLogoutAction,
			},
		},
	}
}

// writableStore returns the configured store, refusing env storage.
func writableStore(cmd *cli.Command) (tokensource.Store, error) {
	cfg, err := loadConfig(cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Auth.Storage == app.TokenStorageTypeEnv {
		return nil, fmt.Errorf("env storage is read-only; set auth.storage to file or keyring")
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	return store, nil
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableStore(cmd)
	if err != nil {
		return err
	}

	key, err := readSecureInput(ctx, cmd, "Anthropic API key: ")
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := store.Write(ctx, key); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.Root().Writer, "API key saved to configured storage")
	return nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableStore(cmd)
	if err != nil {
		return err
	}

	// Clear token via empty string write to maintain storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.Root().Writer, "API key cleared from configured storage")
	return nil
}

// readSecureInput reads a line with hidden display when stdin is a terminal.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, cmd *cli.Command, prompt string) (string, error) {
	out := cmd.Root().Writer
	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			value, err := readLine(cmd.Root().Reader)
			resultCh <- result{value: value, err: err}
			return
		}
		inputBytes, err := term.ReadPassword(fd)
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}

// readLine reads one line without the trailing newline.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
