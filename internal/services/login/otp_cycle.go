package login

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

const otpEnabledScript = `(() => {
	const input = document.querySelector('input#loginOtp');
	return !!input && !input.disabled;
})()`

const otpValidationScript = `(() => {
	const input = document.querySelector('input#loginOtp');
	if (input) {
		input.dispatchEvent(new Event('input', { bubbles: true }));
		input.dispatchEvent(new Event('blur', { bubbles: true }));
	}
	return true;
})()`

// OTPCycle waits for the passcode field, fetches the code from the mailbox,
// types it and submits the login.
type OTPCycle struct {
	mailbox   interfaces.Mailbox
	shots     interfaces.ScreenshotStore
	helper    *ElementHelper
	logger    arbor.ILogger
	timings   Timings
	filter    models.MailFilter
	minLength int
}

// NewOTPCycle creates an OTP cycle reading codes that match filter
func NewOTPCycle(mailbox interfaces.Mailbox, shots interfaces.ScreenshotStore, helper *ElementHelper, logger arbor.ILogger, timings Timings, filter models.MailFilter, minLength int) *OTPCycle {
	if minLength <= 0 {
		minLength = 4
	}
	return &OTPCycle{
		mailbox:   mailbox,
		shots:     shots,
		helper:    helper,
		logger:    logger,
		timings:   timings,
		filter:    filter,
		minLength: minLength,
	}
}

// Run returns Submitted, Failed (field absent), Disabled (code rejected) or RestartRequired (no usable code)
func (c *OTPCycle) Run(ctx context.Context, page interfaces.Page) models.OTPOutcome {
	request := &models.OTPRequest{
		Filter: c.filter,
		Budget: time.Duration(c.filter.MaxAttempts) * c.filter.Interval,
	}
	request.Outcome = c.run(ctx, page, request)

	c.logger.Info().Str("outcome", request.Outcome.String()).Msg("OTP process finished")
	return request.Outcome
}

func (c *OTPCycle) run(ctx context.Context, page interfaces.Page, request *models.OTPRequest) models.OTPOutcome {
	c.logger.Info().Msg("Starting OTP process")

	if !c.helper.WaitForReady(ctx, page, otpInputLocator, c.timings.OTPField) {
		c.logger.Error().Msg("OTP input field not found")
		c.shots.Capture(ctx, page, "otp_input_not_found", models.Locator{})
		return models.OTPFailed
	}

	// Some page builds enable the field without a reliable signal, so this wait is advisory
	if c.waitEnabled(ctx, page) {
		c.logger.Info().Msg("OTP input field is ready")
	} else {
		c.logger.Warn().Msg("OTP input may still be disabled, proceeding anyway")
	}

	c.logger.Info().Dur("settle", c.timings.OTPSettle).Dur("budget", request.Budget).Msg("Waiting for OTP email")
	sleep(ctx, c.timings.OTPSettle)

	code, _, err := c.mailbox.Poll(ctx, request.Filter)
	if err != nil {
		c.logger.Error().Err(err).Msg("Mailbox poll failed")
	}
	request.Code = code

	if len(code) < c.minLength {
		c.logger.Error().Str("received", code).Msg("Failed to retrieve valid OTP, signalling full restart")
		c.shots.Capture(ctx, page, "otp_retrieval_failed", models.Locator{})
		return models.OTPRestartRequired
	}

	if err := page.Fill(ctx, otpInputLocator, ""); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear OTP input")
		return models.OTPDisabled
	}
	if err := page.TypeText(ctx, otpInputLocator, code, c.timings.KeyDelay); err != nil {
		c.logger.Error().Err(err).Msg("Failed to type OTP")
		return models.OTPDisabled
	}
	c.logger.Info().Msg("OTP filled successfully")

	if err := page.Evaluate(ctx, otpValidationScript, nil); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to trigger OTP validation events")
	}
	sleep(ctx, c.timings.SubmitSettle)

	if !page.Enabled(ctx, otpSubmitLocator) {
		c.logger.Warn().Msg("Login button is still disabled after OTP entry")
		c.shots.Capture(ctx, page, "otp_filled_but_disabled", models.Locator{})
		return models.OTPDisabled
	}

	c.logger.Info().Msg("Login button is enabled, clicking")
	c.shots.Capture(ctx, page, "before_login_click", models.Locator{})
	if err := c.helper.ClickOrScript(ctx, page, otpSubmitLocator); err != nil {
		c.logger.Error().Err(err).Msg("Failed to click login button")
		return models.OTPDisabled
	}

	c.logger.Info().Msg("Login button clicked, waiting for response")
	sleep(ctx, c.timings.ClickSettle)
	c.shots.Capture(ctx, page, "after_login_click", models.Locator{})
	return models.OTPSubmitted
}

// waitEnabled polls the field's disabled flag until OTPEnable elapses
func (c *OTPCycle) waitEnabled(ctx context.Context, page interfaces.Page) bool {
	deadline := time.Now().Add(c.timings.OTPEnable)
	for {
		var enabled bool
		if err := page.Evaluate(ctx, otpEnabledScript, &enabled); err == nil && enabled {
			return true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}
		sleep(ctx, 250*time.Millisecond)
	}
}
