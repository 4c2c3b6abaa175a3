package login

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

// Classifier inspects the page after the OTP submit
type Classifier struct {
	shots   interfaces.ScreenshotStore
	logger  arbor.ILogger
	idle    time.Duration
	errors  []models.Locator
	success []models.Locator
}

// NewClassifier creates a classifier using the default error and success locators
func NewClassifier(shots interfaces.ScreenshotStore, logger arbor.ILogger, idle time.Duration) *Classifier {
	return &Classifier{
		shots:   shots,
		logger:  logger,
		idle:    idle,
		errors:  ErrorLocators,
		success: SuccessLocators,
	}
}

// Classify returns Failure for the first visible error with text, Success for the
// first visible success marker, and Indeterminate otherwise. A page that never
// settles is Indeterminate rather than an error.
func (c *Classifier) Classify(ctx context.Context, page interfaces.Page) models.Verdict {
	if err := page.WaitNetworkIdle(ctx, c.idle); err != nil {
		c.logger.Warn().Err(err).Msg("Page did not settle after login, result is indeterminate")
		c.shots.Capture(ctx, page, "result_check_timeout", models.Locator{})
		return models.VerdictIndeterminate
	}

	for _, loc := range c.errors {
		if !page.Visible(ctx, loc) {
			continue
		}
		text, err := page.Text(ctx, loc)
		if err != nil {
			c.logger.Debug().Err(err).Str("selector", loc.String()).Msg("Failed to read error text")
			continue
		}
		if text == "" {
			continue
		}
		c.logger.Error().Str("selector", loc.String()).Str("error", text).Msg("Login error detected")
		c.shots.Capture(ctx, page, "login_error", models.Locator{})
		return models.VerdictFailure
	}

	for _, loc := range c.success {
		if page.Visible(ctx, loc) {
			c.logger.Info().Str("selector", loc.String()).Msg("Login successful, success indicator found")
			return models.VerdictSuccess
		}
	}

	c.logger.Warn().Msg("Could not determine login status, no clear success or error indicators found")
	return models.VerdictIndeterminate
}
