package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/interfaces"
)

const startupTimeout = 30 * time.Second

// ChromeDPBrowser launches one isolated Chrome process per session
type ChromeDPBrowser struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewChromeDPBrowser creates a browser launcher from configuration
func NewChromeDPBrowser(config common.BrowserConfig, logger arbor.ILogger) *ChromeDPBrowser {
	if config.UserAgent == "" {
		config.UserAgent = common.DefaultUserAgent
	}
	return &ChromeDPBrowser{
		config: config,
		logger: logger,
	}
}

// allocatorOptions returns the Chrome flags for a session
func (b *ChromeDPBrowser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("disable-gpu", b.config.DisableGPU),
		chromedp.Flag("no-sandbox", b.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.WindowSize(b.config.WindowWidth, b.config.WindowHeight),
		chromedp.UserAgent(b.config.UserAgent),
	)
	if b.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ExecPath))
	}
	return opts
}

// NewSession starts Chrome, opens a tab and begins tracking network activity.
// The returned close func shuts the whole process down and is safe to call twice.
func (b *ChromeDPBrowser) NewSession(ctx context.Context) (interfaces.Page, func(), error) {
	startTime := time.Now()

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	cleanup := func() {
		browserCancel()
		allocatorCancel()
	}

	tracker := newIdleTracker()
	chromedp.ListenTarget(browserCtx, tracker.handle)

	startCtx, startCancel := context.WithTimeout(browserCtx, startupTimeout)
	defer startCancel()

	if err := chromedp.Run(startCtx, network.Enable(), chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("browser failed startup: %w", err)
	}

	b.logger.Info().
		Bool("headless", b.config.Headless).
		Int("width", b.config.WindowWidth).
		Int("height", b.config.WindowHeight).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session started")

	page := newChromePage(browserCtx, tracker, b.logger)

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		cleanup()
		b.logger.Debug().Msg("Browser session closed")
	}

	return page, closeSession, nil
}
