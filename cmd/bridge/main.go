package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"creator-bridge/internal/app"
	"creator-bridge/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies environment overrides and validates it.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.Load(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a BridgeApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Import", "Serve").
// unlock asks for the passphrase so platform credentials can be opened.
func newApp(cmd *cobra.Command, operation string, unlock bool) (*app.BridgeApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := app.Options{Operation: operation, Console: os.Stderr}
	if unlock {
		opts.Passphrase = readPassphrase
	}
	a, err := app.NewBridgeApp(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a fresh BridgeApp and records its outcome on the operation.
func withApp(cmd *cobra.Command, operation string, unlock bool, fn func(a *app.BridgeApp) error) error {
	a, err := newApp(cmd, operation, unlock)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

// readPassphrase takes BRIDGE_PASSPHRASE when set and otherwise prompts on the terminal.
func readPassphrase() (string, error) {
	if p := os.Getenv("BRIDGE_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: set BRIDGE_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "bridge",
	Short:        "Move short-form videos from social platforms into a video CMS",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(connectionCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(dbCmd)
}
