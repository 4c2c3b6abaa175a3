package interfaces

import "time"

// JobStatus represents the current status of a scheduled check
type JobStatus struct {
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastExit  int
	LastError string
}

// SchedulerService manages cron-based invocation of the portal check
type SchedulerService interface {
	// Start registers every cron expression and starts the scheduler
	Start(schedules []string) error

	// Stop the scheduler, waiting for a running check to finish
	Stop() error

	// TriggerNow runs a check immediately, outside the schedule
	TriggerNow() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// GetJobStatuses returns the status of every registered schedule
	GetJobStatuses() []JobStatus
}
