package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/nextwatch/internal/app"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

var skipStatusCheck bool

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in to the portal once and report the application status",
		RunE:  runCheck,
	}
	cmd.Flags().BoolVar(&skipStatusCheck, "skip-status-check", false, "Stop after login classification")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	defer common.RecoverWithCrashFile()

	config, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	if skipStatusCheck {
		config.Login.SkipStatusCheck = true
	}

	watchdog := common.NewWatchdog(config.Timeout(), logger)
	watchdog.Start()
	defer watchdog.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return &exitError{code: models.ExitFailure}
	}

	result := application.Run(ctx)

	if ctx.Err() != nil {
		logger.Warn().
			Str("run_id", result.RunID).
			Msg("Interrupted by user")
		return &exitError{code: models.ExitInterrupted}
	}

	event := logger.Info()
	if result.Outcome != models.RunSuccess {
		event = logger.Warn()
	}
	event.
		Str("run_id", result.RunID).
		Str("outcome", result.Outcome.String()).
		Str("verdict", result.Verdict.String()).
		Int("attempts", result.Attempts).
		Str("reason", result.Reason).
		Msg("Run finished")

	if result.Status != nil {
		logger.Info().
			Str("status", result.Status.Status).
			Bool("notified", result.Status.Notified).
			Msg("Application status")
	}

	if code := result.Outcome.ExitCode(); code != models.ExitSuccess {
		return &exitError{code: code}
	}
	return nil
}
