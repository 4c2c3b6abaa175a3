package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

// configFiles collects repeated --config flags; later files override earlier ones
var configFiles []string

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nextwatch",
		Short:         "Portal login automation and application status watcher",
		Version:       common.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Without a subcommand the root behaves like "run"
		RunE: runCheck,
	}

	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintln(os.Stderr, exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, err)
		return models.ExitFailure
	}
	return models.ExitSuccess
}

// loadRuntime performs the shared startup sequence:
// config (defaults -> .env -> files -> env) -> validate -> logger -> banner
func loadRuntime() (*common.Config, arbor.ILogger, error) {
	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("nextwatch.toml"); err == nil {
			configFiles = append(configFiles, "nextwatch.toml")
		} else if _, err := os.Stat("deployments/local/nextwatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/nextwatch.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		return nil, nil, &exitError{code: models.ExitFailure, err: fmt.Errorf("failed to load configuration: %w", err)}
	}

	if err := config.Validate(); err != nil {
		return nil, nil, &exitError{code: models.ExitFailure, err: err}
	}

	logger := common.InitLogger(config)
	common.InstallCrashHandler(config.Logging.Dir)
	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Msg("Configuration loaded")

	return config, logger, nil
}
