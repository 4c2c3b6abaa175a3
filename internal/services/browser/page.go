package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/models"
)

const (
	defaultOpTimeout = 10 * time.Second
	waitPollInterval = 100 * time.Millisecond
)

// chromePage implements interfaces.Page on a chromedp tab context
type chromePage struct {
	ctx     context.Context
	tracker *idleTracker
	logger  arbor.ILogger
	refs    atomic.Int64
}

func newChromePage(ctx context.Context, tracker *idleTracker, logger arbor.ILogger) *chromePage {
	return &chromePage{
		ctx:     ctx,
		tracker: tracker,
		logger:  logger,
	}
}

// opContext derives a context from the tab that also ends when the caller's ctx does
func (p *chromePage) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	opCtx, cancel := p.opContext(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	var url string
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// probe resolves loc and tags the match; the returned selector addresses it
func (p *chromePage) probe(ctx context.Context, loc models.Locator) (elementProbe, string, error) {
	ref := fmt.Sprintf("nw-%d", p.refs.Add(1))

	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	var result elementProbe
	if err := chromedp.Run(opCtx, chromedp.Evaluate(buildProbeScript(loc, ref), &result)); err != nil {
		return elementProbe{}, "", fmt.Errorf("probe %s: %w", loc, err)
	}
	return result, refSelector(ref), nil
}

// resolve returns a selector for loc, failing when nothing matches
func (p *chromePage) resolve(ctx context.Context, loc models.Locator) (string, elementProbe, error) {
	result, selector, err := p.probe(ctx, loc)
	if err != nil {
		return "", result, err
	}
	if !result.Found {
		return "", result, fmt.Errorf("element %s not found", loc)
	}
	return selector, result, nil
}

func (p *chromePage) WaitFor(ctx context.Context, loc models.Locator, state models.ElementState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		result, _, err := p.probe(ctx, loc)
		if err == nil && result.satisfies(state) {
			return true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return false
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return p.tracker.wait(ctx, timeout)
}

func (p *chromePage) Visible(ctx context.Context, loc models.Locator) bool {
	result, _, err := p.probe(ctx, loc)
	return err == nil && result.Found && result.Visible
}

func (p *chromePage) Enabled(ctx context.Context, loc models.Locator) bool {
	result, _, err := p.probe(ctx, loc)
	return err == nil && result.Found && result.Enabled
}

func (p *chromePage) Text(ctx context.Context, loc models.Locator) (string, error) {
	_, result, err := p.resolve(ctx, loc)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (p *chromePage) OuterHTML(ctx context.Context, loc models.Locator) (string, error) {
	selector, _, err := p.resolve(ctx, loc)
	if err != nil {
		return "", err
	}

	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, err)
	}
	return html, nil
}

func (p *chromePage) Click(ctx context.Context, loc models.Locator, timeout time.Duration) error {
	selector, _, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}

	opCtx, cancel := p.opContext(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, loc models.Locator, text string) error {
	selector, _, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}

	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	var ok bool
	if err := chromedp.Run(opCtx, chromedp.Evaluate(buildFillScript(selector, text), &ok)); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	if !ok {
		return fmt.Errorf("fill %s: element detached", loc)
	}
	return nil
}

func (p *chromePage) TypeText(ctx context.Context, loc models.Locator, text string, delay time.Duration) error {
	selector, _, err := p.resolve(ctx, loc)
	if err != nil {
		return err
	}

	timeout := defaultOpTimeout + time.Duration(len(text))*delay
	opCtx, cancel := p.opContext(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Focus(selector, chromedp.ByQuery)}
	for _, r := range text {
		actions = append(actions, chromedp.KeyEvent(string(r)))
		if delay > 0 {
			actions = append(actions, chromedp.Sleep(delay))
		}
	}

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, loc models.Locator) ([]byte, error) {
	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	var buf []byte
	if loc.CSS == "" {
		// Quality 100 makes chromedp encode PNG
		if err := chromedp.Run(opCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
			return nil, fmt.Errorf("full page screenshot: %w", err)
		}
		return buf, nil
	}

	selector, _, err := p.resolve(ctx, loc)
	if err != nil {
		return nil, err
	}
	if err := chromedp.Run(opCtx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", loc, err)
	}
	return buf, nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	opCtx, cancel := p.opContext(ctx, defaultOpTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}
