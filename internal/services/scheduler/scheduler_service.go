package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/interfaces"
)

// Runner performs one portal check and returns its process exit code
type Runner func(ctx context.Context) (int, error)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// jobEntry is one registered cron expression
type jobEntry struct {
	schedule string
	cronID   cron.EntryID
	lastRun  *time.Time
}

// Service implements SchedulerService for the portal check
type Service struct {
	run    Runner
	cron   *cron.Cron
	logger arbor.ILogger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex // protects isProcessing and last result
	jobMu        sync.Mutex // protects jobs
	wg           sync.WaitGroup
	jobs         []*jobEntry
	isProcessing bool
	running      bool
	lastExit     int
	lastError    string
}

// NewService creates a new scheduler service
func NewService(run Runner, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		run:    run,
		cron:   cron.New(cron.WithParser(cronParser), cron.WithLogger(cronLogger{logger})),
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers every schedule and starts the scheduler. When a schedule
// already fired earlier today, one catch-up check is started immediately.
func (s *Service) Start(schedules []string) error {
	s.jobMu.Lock()
	if s.running {
		s.jobMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	if len(schedules) == 0 {
		s.jobMu.Unlock()
		return fmt.Errorf("no schedules configured")
	}

	for _, schedule := range schedules {
		entry := &jobEntry{schedule: schedule}
		id, err := s.cron.AddFunc(schedule, func() { s.execute(entry) })
		if err != nil {
			s.jobMu.Unlock()
			return fmt.Errorf("failed to add cron job %q: %w", schedule, err)
		}
		entry.cronID = id
		s.jobs = append(s.jobs, entry)
	}

	s.cron.Start()
	s.running = true
	s.jobMu.Unlock()

	s.logger.Info().
		Strs("schedules", schedules).
		Msg("Scheduler started")

	if firedToday(schedules, s.now()) {
		s.logger.Info().Msg("A schedule already passed today, running initial check")
		return s.TriggerNow()
	}
	return nil
}

// Stop halts the scheduler and waits for a running check to finish
func (s *Service) Stop() error {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return nil
	}
	s.running = false
	s.jobMu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.cancel()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerNow starts a check in the background, outside the schedule
func (s *Service) TriggerNow() error {
	if !s.IsRunning() {
		return fmt.Errorf("scheduler not running")
	}
	s.wg.Add(1)
	common.SafeGo(s.logger, "scheduler-trigger", func() {
		defer s.wg.Done()
		s.execute(nil)
	})
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// GetJobStatuses returns the status of every registered schedule
func (s *Service) GetJobStatuses() []interfaces.JobStatus {
	s.mu.Lock()
	processing, lastExit, lastError := s.isProcessing, s.lastExit, s.lastError
	s.mu.Unlock()

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	statuses := make([]interfaces.JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := interfaces.JobStatus{
			Schedule:  entry.schedule,
			LastRun:   entry.lastRun,
			IsRunning: processing,
			LastExit:  lastExit,
			LastError: lastError,
		}
		if e := s.cron.Entry(entry.cronID); e.Valid() && !e.Next.IsZero() {
			next := e.Next
			status.NextRun = &next
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// execute runs one check; overlapping ticks are skipped. entry is nil for
// manual triggers.
func (s *Service) execute(entry *jobEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("PANIC RECOVERED in scheduled check")
			s.mu.Lock()
			s.isProcessing = false
			s.lastExit = 1
			s.lastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous check still running, skipping this tick")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	started := s.now()
	if entry != nil {
		s.jobMu.Lock()
		entry.lastRun = &started
		s.jobMu.Unlock()
	}

	s.logger.Info().
		Str("started", started.Format("2006-01-02 15:04:05")).
		Msg("Starting portal check")

	code, err := s.run(s.ctx)

	s.mu.Lock()
	s.isProcessing = false
	s.lastExit = code
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil || code != 0 {
		s.logger.Error().
			Err(err).
			Int("exit_code", code).
			Dur("duration", time.Since(started)).
			Msg("Portal check completed with failure")
		return
	}
	s.logger.Info().
		Int("exit_code", code).
		Dur("duration", time.Since(started)).
		Msg("Portal check completed")
}

// firedToday reports whether any schedule had a fire time between midnight and now
func firedToday(schedules []string, now time.Time) bool {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, schedule := range schedules {
		sched, err := cronParser.Parse(schedule)
		if err != nil {
			continue
		}
		first := sched.Next(midnight.Add(-time.Second))
		if !first.After(now) {
			return true
		}
	}
	return false
}

// cronLogger adapts arbor to cron.Logger
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
