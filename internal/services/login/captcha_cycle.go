package login

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

// CaptchaCycle captures, solves, fills and submits the CAPTCHA with bounded retries.
//
// Per attempt: Capturing -> Solving -> Filling -> Submitting -> Evaluating.
// Evaluating ends the cycle with Advanced or NeedsRefresh, or falls through to the
// next attempt. Running out of attempts yields Exhausted.
type CaptchaCycle struct {
	solver     interfaces.CaptchaSolver
	shots      interfaces.ScreenshotStore
	helper     *ElementHelper
	logger     arbor.ILogger
	timings    Timings
	maxRetries int
}

// NewCaptchaCycle creates a CAPTCHA cycle with maxRetries attempts
func NewCaptchaCycle(solver interfaces.CaptchaSolver, shots interfaces.ScreenshotStore, helper *ElementHelper, logger arbor.ILogger, timings Timings, maxRetries int) *CaptchaCycle {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &CaptchaCycle{
		solver:     solver,
		shots:      shots,
		helper:     helper,
		logger:     logger,
		timings:    timings,
		maxRetries: maxRetries,
	}
}

// Run drives the cycle to a terminal outcome: Advanced, NeedsRefresh or Exhausted
func (c *CaptchaCycle) Run(ctx context.Context, page interfaces.Page) models.CaptchaOutcome {
	c.logger.Info().Int("max_retries", c.maxRetries).Msg("Starting CAPTCHA solving process")

	for index := 1; index <= c.maxRetries; index++ {
		if ctx.Err() != nil {
			c.logger.Warn().Err(ctx.Err()).Msg("CAPTCHA cycle cancelled")
			return models.CaptchaNeedsRefresh
		}

		attempt := &models.CaptchaAttempt{Index: index}
		attempt.Outcome = c.attempt(ctx, page, attempt)

		c.logger.Info().
			Int("attempt", index).
			Int("max_retries", c.maxRetries).
			Str("outcome", attempt.Outcome.String()).
			Msg("CAPTCHA attempt finished")

		if attempt.Outcome != models.CaptchaRetry {
			return attempt.Outcome
		}
	}

	c.logger.Error().Int("max_retries", c.maxRetries).Msg("Failed to solve CAPTCHA after all attempts")
	return models.CaptchaExhausted
}

// attempt runs one pass. Any failure before Evaluating is reported as Retry.
func (c *CaptchaCycle) attempt(ctx context.Context, page interfaces.Page, attempt *models.CaptchaAttempt) models.CaptchaOutcome {
	// Capturing
	png, err := page.Screenshot(ctx, captchaImageLocator)
	if err != nil || len(png) == 0 {
		c.logger.Error().Err(err).Int("attempt", attempt.Index).Msg("Failed to take CAPTCHA screenshot")
		return models.CaptchaRetry
	}
	if path, err := c.shots.Save("captcha_image", png); err == nil {
		attempt.ScreenshotPath = path
	}

	// Solving
	text, err := c.solver.Solve(ctx, png)
	if err != nil || text == "" {
		c.logger.Error().Err(err).Str("solver", c.solver.Name()).Int("attempt", attempt.Index).Msg("Failed to solve CAPTCHA")
		c.shots.Capture(ctx, page, fmt.Sprintf("captcha_failed_attempt_%d", attempt.Index), models.Locator{})
		return models.CaptchaRetry
	}
	attempt.SolvedText = text
	c.logger.Info().Str("captcha", text).Int("attempt", attempt.Index).Msg("CAPTCHA solved")

	// Filling
	if !c.helper.WaitForReady(ctx, page, captchaInputLocator, c.timings.Element) {
		c.logger.Error().Msg("CAPTCHA input field not found")
		c.shots.Capture(ctx, page, "captcha_input_not_found", models.Locator{})
		return models.CaptchaRetry
	}
	if err := page.Fill(ctx, captchaInputLocator, ""); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear CAPTCHA input")
		return models.CaptchaRetry
	}
	sleep(ctx, c.timings.FieldSettle)
	if err := page.Fill(ctx, captchaInputLocator, text); err != nil {
		c.logger.Error().Err(err).Msg("Failed to fill CAPTCHA input")
		return models.CaptchaRetry
	}
	c.shots.Capture(ctx, page, fmt.Sprintf("captcha_attempt_%d", attempt.Index), models.Locator{})

	// Submitting
	sleep(ctx, c.timings.ValidateSettle)
	if !c.helper.ClickFirstMatch(ctx, page, NextButtonCandidates, "next") {
		c.logger.Error().Msg("Failed to click Next button")
		c.shots.Capture(ctx, page, "next_button_error", models.Locator{})
		return models.CaptchaRetry
	}

	// Evaluating
	return c.evaluate(ctx, page, attempt)
}

func (c *CaptchaCycle) evaluate(ctx context.Context, page interfaces.Page, attempt *models.CaptchaAttempt) models.CaptchaOutcome {
	if err := page.WaitNetworkIdle(ctx, c.timings.NetworkIdle); err != nil {
		// A slow settle is transient; the page signals below decide the outcome
		c.logger.Warn().Err(err).Msg("Page did not reach network idle after CAPTCHA submit")
	}

	if onOTPPage(ctx, page) {
		c.logger.Info().Msg("Successfully navigated to OTP page")
		return models.CaptchaAdvanced
	}

	c.logger.Warn().Int("attempt", attempt.Index).Msg("Still on CAPTCHA page after submission")
	c.shots.Capture(ctx, page, fmt.Sprintf("captcha_retry_%d", attempt.Index), models.Locator{})

	if needsRefresh(ctx, page) {
		c.logger.Info().Msg("Page state indicates a refresh is needed")
		return models.CaptchaNeedsRefresh
	}

	c.logger.Info().Msg("Retrying CAPTCHA")
	if c.helper.WaitForReady(ctx, page, captchaInputLocator, c.timings.Element) {
		if err := page.Fill(ctx, captchaInputLocator, ""); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to clear CAPTCHA input before retry")
		}
	}
	sleep(ctx, c.timings.RetrySettle)
	return models.CaptchaRetry
}

// onOTPPage reports whether the OTP section header or its input is visible
func onOTPPage(ctx context.Context, page interfaces.Page) bool {
	return page.Visible(ctx, otpHeaderLocator) || page.Visible(ctx, otpInputLocator)
}

// needsRefresh reports session-invalidating signals: an expired/invalid session
// message or a page that was unloaded to about:blank
func needsRefresh(ctx context.Context, page interfaces.Page) bool {
	for _, loc := range refreshErrorLocators {
		if page.Visible(ctx, loc) {
			return true
		}
	}
	url, err := page.URL(ctx)
	return err == nil && strings.TrimSpace(url) == "about:blank"
}
