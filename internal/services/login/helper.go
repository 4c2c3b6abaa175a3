package login

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

// NextButtonCandidates are tried in order when advancing past the CAPTCHA form
var NextButtonCandidates = []models.Locator{
	models.HasText("button.greenButton", "Next"),
	models.HasText("button", "Next"),
	models.CSS(`input[type="submit"][value*="Next"]`),
	models.CSS(`input[type="button"][value*="Next"]`),
}

// clickByLabelScript finds the first enabled, rendered button-like element whose
// text or value contains the label and clicks it. %s is a JSON string literal.
const clickByLabelScript = `(() => {
	const label = %s.toLowerCase();
	const buttons = Array.from(document.querySelectorAll('button, input[type="submit"], input[type="button"]'));
	const match = buttons.find(btn => {
		const text = (btn.textContent || '').toLowerCase().trim();
		const value = (btn.getAttribute('value') || '').toLowerCase().trim();
		return (text.includes(label) || value.includes(label)) &&
			!btn.disabled &&
			btn.offsetParent !== null;
	});
	if (match) {
		match.click();
		return true;
	}
	return false;
})()`

// ElementHelper wraps "wait for element, then act" with bounded timeouts
type ElementHelper struct {
	logger       arbor.ILogger
	settle       time.Duration
	clickTimeout time.Duration
}

// NewElementHelper creates a helper that pauses settle after a successful click
func NewElementHelper(logger arbor.ILogger, settle time.Duration) *ElementHelper {
	return &ElementHelper{
		logger:       logger,
		settle:       settle,
		clickTimeout: 5 * time.Second,
	}
}

// WaitForReady polls for visibility within timeout. Absence is reported as false;
// the caller decides whether it is fatal.
func (h *ElementHelper) WaitForReady(ctx context.Context, page interfaces.Page, loc models.Locator, timeout time.Duration) bool {
	if page.WaitFor(ctx, loc, models.StateVisible, timeout) {
		return true
	}
	h.logger.Warn().Str("selector", loc.String()).Dur("timeout", timeout).Msg("Timeout waiting for selector")
	return false
}

// ClickFirstMatch clicks the first candidate that is visible and enabled. When none
// qualifies it falls back to a script scan for a button labelled label.
// Returns false only when every strategy fails; nothing is clicked in that case.
func (h *ElementHelper) ClickFirstMatch(ctx context.Context, page interfaces.Page, candidates []models.Locator, label string) bool {
	for _, loc := range candidates {
		if !page.Visible(ctx, loc) || !page.Enabled(ctx, loc) {
			continue
		}
		if err := page.Click(ctx, loc, h.clickTimeout); err != nil {
			h.logger.Debug().Err(err).Str("selector", loc.String()).Msg("Failed to click candidate")
			continue
		}
		sleep(ctx, h.settle)
		h.logger.Info().Str("selector", loc.String()).Msg("Clicked button")
		return true
	}

	if label != "" {
		quoted, _ := json.Marshal(label)
		var clicked bool
		err := page.Evaluate(ctx, fmt.Sprintf(clickByLabelScript, quoted), &clicked)
		if err != nil {
			h.logger.Error().Err(err).Str("label", label).Msg("Script click fallback failed")
		} else if clicked {
			sleep(ctx, h.settle)
			h.logger.Info().Str("label", label).Msg("Clicked button using script fallback")
			return true
		}
	}

	h.logger.Error().Str("label", label).Msg("Could not find or click button")
	return false
}

// ClickOrScript clicks loc directly and, if that fails, dispatches a DOM click on it
func (h *ElementHelper) ClickOrScript(ctx context.Context, page interfaces.Page, loc models.Locator) error {
	err := page.Click(ctx, loc, h.clickTimeout)
	if err == nil {
		return nil
	}

	h.logger.Warn().Err(err).Str("selector", loc.String()).Msg("Direct click failed, trying script click")
	quoted, _ := json.Marshal(loc.CSS)
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) { el.click(); return true; } return false; })()`, quoted)

	var clicked bool
	if evalErr := page.Evaluate(ctx, script, &clicked); evalErr != nil {
		return fmt.Errorf("script click failed: %w", evalErr)
	}
	if !clicked {
		return fmt.Errorf("element %s not found for script click: %w", loc, err)
	}
	return nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
