package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

func TestOrchestrator_ScenarioA_Success(t *testing.T) {
	h := newHarness(func(int) *fakePage { return portalPage(true) })
	h.solver.answers = []string{"AB12C"}
	h.mailbox.codes = []string{"123456"}

	result := h.orchestrator(3).Run(context.Background())

	assert.Equal(t, models.RunSuccess, result.Outcome)
	assert.Equal(t, models.ExitSuccess, result.Outcome.ExitCode())
	assert.Equal(t, models.VerdictSuccess, result.Verdict)
	assert.Equal(t, 1, result.Attempts)
	assert.NotEmpty(t, result.RunID)
	require.NotNil(t, result.Status)
	assert.Equal(t, "No JL", result.Status.Status)
	assert.Equal(t, 1, h.status.calls)
	assert.Equal(t, 1, h.browser.sessions)
	assert.Equal(t, 0, h.browser.open)
}

func TestOrchestrator_ScenarioB_CaptchaExhaustedIsTerminal(t *testing.T) {
	h := newHarness(func(int) *fakePage { return portalPage(true) })

	result := h.orchestrator(3).Run(context.Background())

	assert.Equal(t, models.RunFailure, result.Outcome)
	assert.Equal(t, models.ExitFailure, result.Outcome.ExitCode())
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 2, h.solver.calls)
	assert.Equal(t, 1, h.browser.sessions, "no further sessions after exhaustion")
	assert.Equal(t, 1, h.browser.closed)
	assert.Zero(t, h.mailbox.calls)
	assert.Contains(t, result.Reason, "exhausted")
}

func TestOrchestrator_ScenarioC_MissingOTPRestartsSession(t *testing.T) {
	h := newHarness(func(int) *fakePage { return portalPage(true) })
	h.solver.answers = []string{"AB12C", "XY34Z"}
	h.mailbox.codes = []string{"", "654321"}

	result := h.orchestrator(3).Run(context.Background())

	assert.Equal(t, models.RunSuccess, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, h.browser.sessions)
	assert.Equal(t, 2, h.browser.closed)
	assert.Equal(t, 1, h.browser.maxOpen, "sessions never overlap")
	assert.Equal(t, 2, h.mailbox.calls)
}

func TestOrchestrator_RestartEdges(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fakePage)
	}{
		{
			name:  "navigation failure",
			setup: func(p *fakePage) { p.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED") },
		},
		{
			name:  "login control missing",
			setup: func(p *fakePage) { p.hide(loginLinkLocator) },
		},
		{
			name:  "email field missing",
			setup: func(p *fakePage) { p.hide(emailInputLocator) },
		},
		{
			name: "captcha needs refresh",
			setup: func(p *fakePage) {
				p.onClick = func(p *fakePage, loc models.Locator) {
					if loc == NextButtonCandidates[0] {
						p.show(refreshErrorLocators[0])
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(func(int) *fakePage {
				p := portalPage(true)
				tt.setup(p)
				return p
			})
			h.solver.answers = []string{"AB12C", "AB12C", "AB12C"}

			result := h.orchestrator(3).Run(context.Background())

			assert.Equal(t, models.RunFailure, result.Outcome)
			assert.Equal(t, 3, result.Attempts)
			assert.Equal(t, 3, h.browser.sessions)
			assert.Equal(t, 3, h.browser.closed)
			assert.Contains(t, result.Reason, "login attempts exhausted")
		})
	}
}

func TestOrchestrator_TerminalFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness, p *fakePage)
		reason string
	}{
		{
			name: "otp submit disabled",
			setup: func(h *harness, p *fakePage) {
				p.disabled[otpSubmitLocator.String()] = true
			},
			reason: "otp disabled",
		},
		{
			name: "portal rejects login",
			setup: func(h *harness, p *fakePage) {
				p.onClick = func(p *fakePage, loc models.Locator) {
					if loc == NextButtonCandidates[0] {
						p.show(otpHeaderLocator, otpInputLocator, otpSubmitLocator)
					}
					if loc == otpSubmitLocator {
						p.show(ErrorLocators[0])
						p.mu.Lock()
						p.texts[ErrorLocators[0].String()] = "Invalid OTP"
						p.mu.Unlock()
					}
				}
			},
			reason: "login rejected",
		},
		{
			name: "status check error",
			setup: func(h *harness, p *fakePage) {
				h.status.report = nil
				h.status.err = errors.New("status table not found")
			},
			reason: "status check failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h *harness
			h = newHarness(func(int) *fakePage {
				p := portalPage(true)
				tt.setup(h, p)
				return p
			})
			h.solver.answers = []string{"AB12C", "AB12C"}
			h.mailbox.codes = []string{"123456", "123456"}

			result := h.orchestrator(3).Run(context.Background())

			assert.Equal(t, models.RunFailure, result.Outcome)
			assert.Equal(t, 1, result.Attempts)
			assert.Equal(t, 1, h.browser.sessions)
			assert.Contains(t, result.Reason, tt.reason)
		})
	}
}

func TestOrchestrator_IndeterminateVerdict(t *testing.T) {
	indeterminatePage := func(int) *fakePage {
		p := portalPage(true)
		p.onClick = func(p *fakePage, loc models.Locator) {
			if loc == NextButtonCandidates[0] {
				p.show(otpHeaderLocator, otpInputLocator, otpSubmitLocator)
			}
		}
		return p
	}

	t.Run("status check decides", func(t *testing.T) {
		h := newHarness(indeterminatePage)
		h.solver.answers = []string{"AB12C"}
		h.mailbox.codes = []string{"123456"}

		result := h.orchestrator(3).Run(context.Background())

		assert.Equal(t, models.VerdictIndeterminate, result.Verdict)
		assert.Equal(t, models.RunSuccess, result.Outcome)
		assert.Equal(t, 1, h.status.calls)
	})

	t.Run("no status check", func(t *testing.T) {
		h := newHarness(indeterminatePage)
		h.solver.answers = []string{"AB12C"}
		h.mailbox.codes = []string{"123456"}
		o := h.orchestrator(3)
		o.opts.SkipStatusCheck = true

		result := o.Run(context.Background())

		assert.Equal(t, models.RunIndeterminate, result.Outcome)
		assert.Equal(t, models.ExitIndeterminate, result.Outcome.ExitCode())
		assert.Zero(t, h.status.calls)
	})
}

func TestOrchestrator_PanicIsRecoveredAndSessionClosed(t *testing.T) {
	h := newHarness(func(session int) *fakePage {
		p := portalPage(true)
		if session == 1 {
			p.onClick = func(p *fakePage, loc models.Locator) {
				panic("renderer crashed")
			}
		}
		return p
	})
	h.solver.answers = []string{"AB12C"}
	h.mailbox.codes = []string{"123456"}

	result := h.orchestrator(3).Run(context.Background())

	assert.Equal(t, models.RunSuccess, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, h.browser.closed)
	assert.Equal(t, 0, h.browser.open)
}

func TestOrchestrator_BrowserStartFailure(t *testing.T) {
	h := newHarness(nil)
	h.browser.err = errors.New("chrome not found")

	result := h.orchestrator(2).Run(context.Background())

	assert.Equal(t, models.RunFailure, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Reason, "chrome not found")
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	h := newHarness(func(int) *fakePage { return portalPage(true) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := h.orchestrator(3).Run(ctx)

	assert.Equal(t, models.RunFailure, result.Outcome)
	assert.Zero(t, h.browser.sessions)
	assert.Contains(t, result.Reason, "cancelled")
}

// blockingMailbox never delivers; it waits until the run is torn down
type blockingMailbox struct {
	entered chan struct{}
}

func (m *blockingMailbox) Poll(ctx context.Context, filter models.MailFilter) (string, string, error) {
	close(m.entered)
	<-ctx.Done()
	return "", "", ctx.Err()
}

func TestOrchestrator_WatchdogFiresDuringOTPWait(t *testing.T) {
	logger := arbor.NewLogger()
	helper := NewElementHelper(logger, 0)
	store := &fakeStore{}
	browser := &fakeBrowser{newPage: func(int) *fakePage { return portalPage(true) }}
	mailbox := &blockingMailbox{entered: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCodes := make(chan int, 1)
	watchdog := common.NewWatchdogWithExit(50*time.Millisecond, logger, func(code int) {
		exitCodes <- code
		// Stands in for process termination
		cancel()
	})

	o := NewOrchestrator(
		browser,
		NewCaptchaCycle(&fakeSolver{answers: []string{"AB12C"}}, store, helper, logger, zeroTimings(), 2),
		NewOTPCycle(mailbox, store, helper, logger, zeroTimings(), models.MailFilter{MaxAttempts: 2}, 4),
		NewClassifier(store, logger, 0),
		nil,
		store,
		helper,
		logger,
		Options{PortalURL: "https://portal.example/campus/", Email: "user@example.com", MaxAttempts: 3, Timings: zeroTimings()},
	)

	watchdog.Start()
	done := make(chan models.RunResult, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case <-mailbox.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("OTP wait never started")
	}

	select {
	case code := <-exitCodes:
		assert.NotEqual(t, models.ExitSuccess, code)
		assert.Equal(t, models.ExitFailure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	assert.True(t, watchdog.Fired())
	assert.False(t, watchdog.Stop())

	select {
	case result := <-done:
		assert.NotEqual(t, models.RunSuccess, result.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not unwind after cancellation")
	}
}
