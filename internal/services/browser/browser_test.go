package browser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

func TestIdleTracker_CountsInflightRequests(t *testing.T) {
	tracker := newIdleTracker()
	tracker.quiet = 0

	assert.True(t, tracker.idle())

	tracker.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	tracker.handle(&network.EventRequestWillBeSent{RequestID: "2"})
	// Redirect reuses the ID
	tracker.handle(&network.EventRequestWillBeSent{RequestID: "2"})
	assert.Equal(t, 2, tracker.pending())
	assert.False(t, tracker.idle())

	tracker.handle(&network.EventLoadingFinished{RequestID: "1"})
	tracker.handle(&network.EventLoadingFailed{RequestID: "2"})
	assert.Equal(t, 0, tracker.pending())
	assert.True(t, tracker.idle())

	// Unknown finishes never go negative
	tracker.handle(&network.EventLoadingFinished{RequestID: "9"})
	assert.Equal(t, 0, tracker.pending())
}

func TestIdleTracker_QuietWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := newIdleTracker()
	tracker.now = func() time.Time { return now }

	tracker.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	tracker.handle(&network.EventLoadingFinished{RequestID: "1"})
	assert.False(t, tracker.idle(), "quiet window has not elapsed")

	now = now.Add(networkQuietWindow)
	assert.True(t, tracker.idle())
}

func TestIdleTracker_WaitTimesOut(t *testing.T) {
	tracker := newIdleTracker()
	tracker.handle(&network.EventRequestWillBeSent{RequestID: "slow"})

	err := tracker.wait(context.Background(), 150*time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 requests pending")
}

func TestIdleTracker_WaitReturnsWhenIdle(t *testing.T) {
	tracker := newIdleTracker()
	tracker.quiet = 0
	tracker.handle(&network.EventRequestWillBeSent{RequestID: "1"})

	go func() {
		time.Sleep(50 * time.Millisecond)
		tracker.handle(&network.EventLoadingFinished{RequestID: "1"})
	}()

	assert.NoError(t, tracker.wait(context.Background(), 2*time.Second))
}

func TestIdleTracker_WaitHonoursContext(t *testing.T) {
	tracker := newIdleTracker()
	tracker.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tracker.wait(ctx, time.Second), context.Canceled)
}

func TestElementProbe_Satisfies(t *testing.T) {
	missing := elementProbe{}
	hidden := elementProbe{Found: true}
	shown := elementProbe{Found: true, Visible: true}

	assert.False(t, missing.satisfies(models.StateVisible))
	assert.False(t, hidden.satisfies(models.StateVisible))
	assert.True(t, shown.satisfies(models.StateVisible))

	assert.False(t, missing.satisfies(models.StateAttached))
	assert.True(t, hidden.satisfies(models.StateAttached))

	assert.True(t, missing.satisfies(models.StateHidden))
	assert.True(t, hidden.satisfies(models.StateHidden))
	assert.False(t, shown.satisfies(models.StateHidden))
}

func TestBuildProbeScript_QuotesArguments(t *testing.T) {
	loc := models.HasText(`input[name="loginID"]`, `It's "Next"`)

	script := buildProbeScript(loc, "nw-7")

	assert.Contains(t, script, `const selector = "input[name=\"loginID\"]", text = "It's \"Next\"", ref = "nw-7";`)
	assert.Contains(t, script, "data-nw-ref")
	assert.Equal(t, `[data-nw-ref="nw-7"]`, refSelector("nw-7"))
}

func TestBuildFillScript(t *testing.T) {
	script := buildFillScript(refSelector("nw-1"), "AB12C")

	assert.Contains(t, script, `document.querySelector("[data-nw-ref=\"nw-1\"]")`)
	assert.Contains(t, script, `setter.call(el, "AB12C");`)
}

func TestAllocatorOptions(t *testing.T) {
	config := common.NewDefaultConfig().Browser
	config.ExecPath = "/opt/chrome/chrome"
	browser := NewChromeDPBrowser(config, arbor.NewLogger())

	defaults := len(browser.allocatorOptions())
	config.ExecPath = ""
	withoutPath := len(NewChromeDPBrowser(config, arbor.NewLogger()).allocatorOptions())

	assert.Equal(t, withoutPath+1, defaults)
	assert.True(t, strings.HasPrefix(browser.config.UserAgent, "Mozilla/"))
}
