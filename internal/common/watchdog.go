package common

import (
	"os"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// Watchdog terminates the process when a whole run exceeds its budget.
// Expiry does not unwind: it logs and exits immediately, leaving cleanup to the OS.
type Watchdog struct {
	timeout time.Duration
	logger  arbor.ILogger
	exit    func(int)

	mu    sync.Mutex
	timer *time.Timer
	fired bool
}

// NewWatchdog creates a watchdog that calls os.Exit on expiry
func NewWatchdog(timeout time.Duration, logger arbor.ILogger) *Watchdog {
	return NewWatchdogWithExit(timeout, logger, os.Exit)
}

// NewWatchdogWithExit creates a watchdog with a custom exit func (used by tests)
func NewWatchdogWithExit(timeout time.Duration, logger arbor.ILogger, exit func(int)) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		logger:  logger,
		exit:    exit,
	}
}

// Start arms the timer. Calling Start on an armed watchdog is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil || w.timeout <= 0 {
		return
	}
	w.timer = time.AfterFunc(w.timeout, w.expire)
}

// Stop disarms the timer; it reports false if the watchdog already fired.
func (w *Watchdog) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer == nil {
		return !w.fired
	}
	w.timer.Stop()
	w.timer = nil
	return !w.fired
}

// Fired reports whether the budget was exceeded
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	w.fired = true
	w.mu.Unlock()

	w.logger.Error().
		Dur("timeout", w.timeout).
		Msg("Script timed out, forcing exit")
	w.exit(1)
}
