package login

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

// Options configures an Orchestrator
type Options struct {
	PortalURL       string
	Email           string
	MaxAttempts     int
	SkipStatusCheck bool
	Timings         Timings
}

// Orchestrator drives whole login attempts, each in a fresh browser session,
// until one reaches a terminal state or the attempt budget runs out.
type Orchestrator struct {
	browser    interfaces.Browser
	captcha    *CaptchaCycle
	otp        *OTPCycle
	classifier *Classifier
	status     interfaces.StatusChecker
	shots      interfaces.ScreenshotStore
	helper     *ElementHelper
	logger     arbor.ILogger
	opts       Options
}

// NewOrchestrator wires the cycles together. status may be nil, in which case the
// post-login step only reports the verdict.
func NewOrchestrator(
	browser interfaces.Browser,
	captcha *CaptchaCycle,
	otp *OTPCycle,
	classifier *Classifier,
	status interfaces.StatusChecker,
	shots interfaces.ScreenshotStore,
	helper *ElementHelper,
	logger arbor.ILogger,
	opts Options,
) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = common.DefaultMaxLoginAttempts
	}
	return &Orchestrator{
		browser:    browser,
		captcha:    captcha,
		otp:        otp,
		classifier: classifier,
		status:     status,
		shots:      shots,
		helper:     helper,
		logger:     logger,
		opts:       opts,
	}
}

// attemptResult is what one session attempt hands back to the loop
type attemptResult struct {
	state   State
	verdict models.Verdict
	report  *models.StatusReport
	reason  string
}

// Run executes the login flow. It never returns an error: every path ends in a RunResult.
func (o *Orchestrator) Run(ctx context.Context) models.RunResult {
	result := models.RunResult{
		RunID:   common.NewRunID(),
		Outcome: models.RunFailure,
	}
	logger := o.logger.WithCorrelationId(result.RunID)

	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Reason = fmt.Sprintf("cancelled: %v", err)
			logger.Warn().Err(err).Msg("Run cancelled before next attempt")
			return result
		}

		result.Attempts = attempt
		logger.Info().Int("attempt", attempt).Int("max_attempts", o.opts.MaxAttempts).Msg("Starting login attempt")

		ar := o.runAttempt(ctx, logger, attempt)
		result.Verdict = ar.verdict
		result.Status = ar.report
		result.Reason = ar.reason

		switch ar.state {
		case StateDone:
			result.Outcome = o.outcomeFor(ar)
			logger.Info().Str("outcome", result.Outcome.String()).Int("attempt", attempt).Msg("Login flow completed")
			return result
		case StateFailed:
			logger.Error().Str("reason", ar.reason).Int("attempt", attempt).Msg("Login failed, no further attempts")
			return result
		default:
			logger.Warn().Str("reason", ar.reason).Int("attempt", attempt).Msg("Attempt needs a full restart")
		}
	}

	logger.Error().Int("max_attempts", o.opts.MaxAttempts).Msg("All login attempts failed")
	result.Outcome = models.RunFailure
	if result.Reason == "" {
		result.Reason = "login attempts exhausted"
	} else {
		result.Reason = "login attempts exhausted: " + result.Reason
	}
	return result
}

// outcomeFor maps a finished attempt onto the run outcome. A status check that ran
// decides by itself; without one the verdict is passed through.
func (o *Orchestrator) outcomeFor(ar attemptResult) models.RunOutcome {
	if ar.report != nil {
		return models.RunSuccess
	}
	if ar.verdict == models.VerdictIndeterminate {
		return models.RunIndeterminate
	}
	return models.RunSuccess
}

// runAttempt owns exactly one browser session. The session is closed on every
// path out, and a panic anywhere inside is converted into a restart.
func (o *Orchestrator) runAttempt(ctx context.Context, logger arbor.ILogger, attempt int) (ar attemptResult) {
	ar = attemptResult{state: StateRestart, verdict: models.VerdictIndeterminate}

	page, closeSession, err := o.browser.NewSession(ctx)
	if err != nil {
		ar.reason = fmt.Sprintf("failed to start browser: %v", err)
		logger.Error().Err(err).Int("attempt", attempt).Msg("Failed to start browser session")
		return ar
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Int("attempt", attempt).
				Msg("Unexpected fault during login attempt")
			ar = attemptResult{
				state:   StateRestart,
				verdict: models.VerdictIndeterminate,
				reason:  fmt.Sprintf("unexpected fault: %v", r),
			}
		}
		closeSession()
		logger.Debug().Int("attempt", attempt).Msg("Browser session closed")
	}()

	state := StateStart
	for !state.Terminal() {
		signal := o.step(ctx, logger, page, state, &ar)
		next, err := Next(state, signal)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid login state transition")
			ar.reason = err.Error()
		}
		logger.Debug().Str("from", state.String()).Str("signal", signal.String()).Str("to", next.String()).Msg("Login state transition")
		state = next
	}
	ar.state = state
	return ar
}

// step performs the work of one state and reports how it went
func (o *Orchestrator) step(ctx context.Context, logger arbor.ILogger, page interfaces.Page, state State, ar *attemptResult) Signal {
	t := o.opts.Timings

	switch state {
	case StateStart:
		return SignalOK

	case StateNavigate:
		logger.Info().Str("url", o.opts.PortalURL).Msg("Navigating to portal")
		if err := page.Navigate(ctx, o.opts.PortalURL, t.Navigation); err != nil {
			logger.Error().Err(err).Msg("Navigation failed")
			o.shots.Capture(ctx, page, "navigation_failed", models.Locator{})
			ar.reason = fmt.Sprintf("navigation failed: %v", err)
			return SignalRestart
		}
		return SignalOK

	case StateClickLogin:
		if !o.helper.WaitForReady(ctx, page, loginLinkLocator, t.Element) {
			o.shots.Capture(ctx, page, "login_button_not_found", models.Locator{})
			ar.reason = "login control not found"
			return SignalRestart
		}
		if err := page.Click(ctx, loginLinkLocator, t.Element); err != nil {
			logger.Error().Err(err).Msg("Failed to click login control")
			ar.reason = fmt.Sprintf("login click failed: %v", err)
			return SignalRestart
		}
		logger.Info().Msg("Clicked login button")
		sleep(ctx, t.ClickSettle)
		return SignalOK

	case StateEnterEmail:
		if !o.helper.WaitForReady(ctx, page, emailInputLocator, t.Element) {
			o.shots.Capture(ctx, page, "email_input_not_found", models.Locator{})
			ar.reason = "email field not found"
			return SignalRestart
		}
		if err := page.Fill(ctx, emailInputLocator, o.opts.Email); err != nil {
			logger.Error().Err(err).Msg("Failed to fill email")
			ar.reason = fmt.Sprintf("email fill failed: %v", err)
			return SignalRestart
		}
		logger.Info().Msg("Filled email")
		return SignalOK

	case StateCaptcha:
		outcome := o.captcha.Run(ctx, page)
		if outcome != models.CaptchaAdvanced {
			ar.reason = "captcha " + outcome.String()
		}
		return captchaSignal(outcome)

	case StateOTP:
		outcome := o.otp.Run(ctx, page)
		if outcome != models.OTPSubmitted {
			ar.reason = "otp " + outcome.String()
		}
		return otpSignal(outcome)

	case StateClassify:
		ar.verdict = o.classifier.Classify(ctx, page)
		if ar.verdict == models.VerdictFailure {
			ar.reason = "login rejected by portal"
		} else {
			ar.reason = ""
		}
		return verdictSignal(ar.verdict)

	case StatePostLogin:
		if o.status == nil || o.opts.SkipStatusCheck {
			logger.Info().Str("verdict", ar.verdict.String()).Msg("Status check skipped")
			return SignalOK
		}
		report, err := o.status.Check(ctx, page)
		if err != nil {
			logger.Error().Err(err).Msg("Status check failed")
			ar.reason = fmt.Sprintf("status check failed: %v", err)
			return SignalFatal
		}
		ar.report = report
		return SignalOK
	}

	return SignalFatal
}
