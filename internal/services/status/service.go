package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

const (
	StatusScheduled = "ILP Scheduled"
	StatusNone      = "No JL"

	subjectScheduled = "TCS JL Received!"
	subjectNone      = "NO JL Received by TCS"
)

var (
	trackLinkLocator = models.HasText("a", "Track My Application")
	bodyLocator      = models.CSS("body")
)

// Options bounds the scrape
type Options struct {
	ClickTimeout time.Duration
	Settle       time.Duration // after opening the tracker, before reading the table
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		ClickTimeout: 30 * time.Second,
		Settle:       3 * time.Second,
	}
}

// Service implements interfaces.StatusChecker for the application tracker
type Service struct {
	shots    interfaces.ScreenshotStore
	notifier interfaces.Notifier
	logger   arbor.ILogger
	opts     Options
	now      func() time.Time
}

// NewService creates a status checker. notifier may be nil, in which case the
// report is returned without sending mail.
func NewService(shots interfaces.ScreenshotStore, notifier interfaces.Notifier, logger arbor.ILogger, opts Options) *Service {
	return &Service{
		shots:    shots,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Check opens the application tracker, classifies the newest row and mails
// the result. A notification failure is logged and the report still returned.
func (s *Service) Check(ctx context.Context, page interfaces.Page) (*models.StatusReport, error) {
	s.logger.Info().Msg("Starting application status check")

	report, err := s.scrape(ctx, page)
	if err != nil {
		s.shots.Capture(ctx, page, "jl_status_error", models.Locator{})
		return nil, err
	}

	report.ScreenshotPath = s.shots.Capture(ctx, page, "application_status", models.Locator{})

	s.logger.Info().
		Str("status", report.Status).
		Str("row", report.RowText).
		Msg("Application status read")

	if s.notifier == nil {
		return report, nil
	}

	subject, body := notification(report)
	if err := s.notifier.Notify(ctx, subject, body, report.ScreenshotPath); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send status notification")
		return report, nil
	}
	report.Notified = true
	return report, nil
}

func (s *Service) scrape(ctx context.Context, page interfaces.Page) (*models.StatusReport, error) {
	if err := page.Click(ctx, trackLinkLocator, s.opts.ClickTimeout); err != nil {
		return nil, fmt.Errorf("failed to open application tracker: %w", err)
	}

	if s.opts.Settle > 0 {
		timer := time.NewTimer(s.opts.Settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	html, err := page.OuterHTML(ctx, bodyLocator)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker page: %w", err)
	}

	row, err := FirstDataRow(html)
	if err != nil {
		return nil, err
	}

	return &models.StatusReport{
		Status:  Classify(row, s.now()),
		RowText: row,
	}, nil
}

// FirstDataRow returns the text of the row after the header row of the first
// table in html, with cells separated by tabs
func FirstDataRow(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse tracker page: %w", err)
	}

	rows := doc.Find("table tr")
	if rows.Length() < 2 {
		return "", fmt.Errorf("application table has no data rows")
	}
	row := rows.Eq(1)

	var cells []string
	row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
	})
	if len(cells) == 0 {
		return strings.Join(strings.Fields(row.Text()), " "), nil
	}
	return strings.Join(cells, "\t"), nil
}

// Classify maps a tracker row to a status label. A row dated today counts as
// scheduled even when the label has not been updated yet.
func Classify(row string, now time.Time) string {
	if strings.Contains(row, StatusScheduled) || strings.Contains(row, now.Format("02/01/2006")) {
		return StatusScheduled
	}
	return StatusNone
}

func notification(report *models.StatusReport) (string, string) {
	if report.Status == StatusScheduled {
		return subjectScheduled, fmt.Sprintf("Congratulations! You have received your JL from TCS.\n\nStatus Row:\n%s", report.RowText)
	}
	return subjectNone, fmt.Sprintf("NO JL yet by TCS.\n\nStatus Row:\n%s", report.RowText)
}
