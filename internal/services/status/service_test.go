package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

const trackerHTML = `<body>
<table>
  <tr><th>Date</th><th>Status</th></tr>
  <tr><td>10/03/2026</td><td> ILP   Scheduled </td></tr>
  <tr><td>01/02/2026</td><td>Applied</td></tr>
</table>
</body>`

type fakePage struct {
	interfaces.Page
	html     string
	clickErr error
	clicked  []models.Locator
}

func (p *fakePage) Click(ctx context.Context, loc models.Locator, timeout time.Duration) error {
	p.clicked = append(p.clicked, loc)
	return p.clickErr
}

func (p *fakePage) OuterHTML(ctx context.Context, loc models.Locator) (string, error) {
	return p.html, nil
}

type fakeStore struct {
	interfaces.ScreenshotStore
	names []string
}

func (s *fakeStore) Capture(ctx context.Context, page interfaces.Page, name string, loc models.Locator) string {
	s.names = append(s.names, name)
	return "/tmp/" + name + ".png"
}

type fakeNotifier struct {
	err      error
	subjects []string
	bodies   []string
	paths    []string
}

func (n *fakeNotifier) Notify(ctx context.Context, subject, body, attachmentPath string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	n.paths = append(n.paths, attachmentPath)
	return n.err
}

func newTestService(notifier interfaces.Notifier) (*Service, *fakeStore) {
	store := &fakeStore{}
	s := NewService(store, notifier, arbor.NewLogger(), Options{ClickTimeout: time.Second})
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local) }
	return s, store
}

func TestFirstDataRow(t *testing.T) {
	row, err := FirstDataRow(trackerHTML)

	require.NoError(t, err)
	assert.Equal(t, "10/03/2026\tILP Scheduled", row)

	_, err = FirstDataRow(`<table><tr><th>Date</th></tr></table>`)
	assert.Error(t, err)

	_, err = FirstDataRow(`<div>no table</div>`)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusScheduled, Classify("10/03/2026\tILP Scheduled", now))
	assert.Equal(t, StatusScheduled, Classify("14/03/2026\tUnder Review", now))
	assert.Equal(t, StatusNone, Classify("13/03/2026\tUnder Review", now))
	assert.Equal(t, StatusNone, Classify("", now))
}

func TestCheck_ScheduledSendsCongratulations(t *testing.T) {
	notifier := &fakeNotifier{}
	s, store := newTestService(notifier)
	page := &fakePage{html: trackerHTML}

	report, err := s.Check(context.Background(), page)

	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, report.Status)
	assert.True(t, report.Notified)
	assert.Equal(t, "/tmp/application_status.png", report.ScreenshotPath)
	assert.Equal(t, []models.Locator{trackLinkLocator}, page.clicked)
	assert.Equal(t, []string{"application_status"}, store.names)
	require.Len(t, notifier.subjects, 1)
	assert.Equal(t, "TCS JL Received!", notifier.subjects[0])
	assert.Contains(t, notifier.bodies[0], "ILP Scheduled")
	assert.Equal(t, "/tmp/application_status.png", notifier.paths[0])
}

func TestCheck_NoJL(t *testing.T) {
	notifier := &fakeNotifier{}
	s, _ := newTestService(notifier)
	page := &fakePage{html: `<table><tr><th>x</th></tr><tr><td>01/01/2026</td><td>Applied</td></tr></table>`}

	report, err := s.Check(context.Background(), page)

	require.NoError(t, err)
	assert.Equal(t, StatusNone, report.Status)
	assert.Equal(t, "NO JL Received by TCS", notifier.subjects[0])
	assert.Contains(t, notifier.bodies[0], "NO JL yet by TCS.")
}

func TestCheck_NotifyFailureIsNotFatal(t *testing.T) {
	s, _ := newTestService(&fakeNotifier{err: errors.New("smtp down")})

	report, err := s.Check(context.Background(), &fakePage{html: trackerHTML})

	require.NoError(t, err)
	assert.False(t, report.Notified)
	assert.Equal(t, StatusScheduled, report.Status)
}

func TestCheck_WithoutNotifier(t *testing.T) {
	s, _ := newTestService(nil)

	report, err := s.Check(context.Background(), &fakePage{html: trackerHTML})

	require.NoError(t, err)
	assert.False(t, report.Notified)
}

func TestCheck_MissingTrackerLink(t *testing.T) {
	notifier := &fakeNotifier{}
	s, store := newTestService(notifier)

	report, err := s.Check(context.Background(), &fakePage{clickErr: errors.New("not found")})

	assert.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, []string{"jl_status_error"}, store.names)
	assert.Empty(t, notifier.subjects)
}

func TestCheck_EmptyTable(t *testing.T) {
	s, store := newTestService(&fakeNotifier{})

	_, err := s.Check(context.Background(), &fakePage{html: "<table></table>"})

	assert.Error(t, err)
	assert.Equal(t, []string{"jl_status_error"}, store.names)
}
