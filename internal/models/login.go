package models

import (
	"fmt"
	"time"
)

// Locator addresses an element on the page: a CSS selector, optionally narrowed
// to the first match whose visible text contains Text (case-insensitive).
type Locator struct {
	CSS  string
	Text string
}

// CSS returns a plain selector locator.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// HasText returns a locator matching selector elements containing text.
func HasText(selector, text string) Locator {
	return Locator{CSS: selector, Text: text}
}

func (l Locator) String() string {
	if l.Text == "" {
		return l.CSS
	}
	return fmt.Sprintf("%s:has-text(%q)", l.CSS, l.Text)
}

// ElementState is the condition a wait is satisfied by.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateAttached ElementState = "attached"
	StateHidden   ElementState = "hidden"
)

// CaptchaAttempt records one pass through the CAPTCHA cycle.
// It is discarded at the end of the attempt.
type CaptchaAttempt struct {
	Index          int
	ScreenshotPath string
	SolvedText     string
	Outcome        CaptchaOutcome
}

// MailFilter narrows the mailbox search to the expected notification.
type MailFilter struct {
	Sender          string
	SubjectContains string
	Interval        time.Duration // wait between re-searches
	MaxAttempts     int           // re-searches after the first
}

// OTPRequest is owned by the OTP cycle for the duration of one login attempt.
type OTPRequest struct {
	Filter  MailFilter
	Budget  time.Duration
	Code    string
	Outcome OTPOutcome
}

// StatusReport is the result of the post-login application status scrape.
type StatusReport struct {
	Status         string
	RowText        string
	ScreenshotPath string
	Notified       bool
}

// RunResult is returned by the orchestrator once a run is finished.
type RunResult struct {
	RunID    string
	Outcome  RunOutcome
	Verdict  Verdict
	Attempts int
	Status   *StatusReport
	Reason   string
}
