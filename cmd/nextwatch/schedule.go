package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
	"github.com/ternarybob/nextwatch/internal/services/scheduler"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the portal check on the configured cron schedules",
		RunE:  runSchedule,
	}
}

func runSchedule(cmd *cobra.Command, args []string) error {
	defer common.RecoverWithCrashFile()

	config, logger, err := loadRuntime()
	if err != nil {
		return err
	}

	executable, err := os.Executable()
	if err != nil {
		return &exitError{code: models.ExitFailure, err: fmt.Errorf("failed to locate executable: %w", err)}
	}

	childArgs := []string{"run"}
	for _, path := range configFiles {
		childArgs = append(childArgs, "--config", path)
	}

	wd, _ := os.Getwd()
	service := scheduler.NewService(scheduler.NewProcessRunner(executable, childArgs, wd, logger), logger)

	if err := service.Start(config.Scheduler.Schedules); err != nil {
		return &exitError{code: models.ExitFailure, err: err}
	}

	for _, status := range service.GetJobStatuses() {
		if status.NextRun != nil {
			logger.Info().
				Str("schedule", status.Schedule).
				Str("next_run", status.NextRun.Format("2006-01-02 15:04:05")).
				Msg("Next run scheduled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Scheduler stopped by user")
	return service.Stop()
}
