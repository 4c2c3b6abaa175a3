package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/nextwatch/internal/models"
)

// Page is a single browser tab driven by the login flow.
// Every blocking call is bounded by its own timeout or by ctx.
type Page interface {
	// Navigate loads url and waits for the document to load.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// URL returns the current document location.
	URL(ctx context.Context) (string, error)

	// WaitFor polls until the locator reaches state or timeout elapses.
	// Returns false on timeout; never returns an error.
	WaitFor(ctx context.Context, loc models.Locator, state models.ElementState, timeout time.Duration) bool

	// WaitNetworkIdle blocks until no requests have been in flight for a short quiet window.
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	// Visible reports whether the locator currently resolves to a rendered element.
	Visible(ctx context.Context, loc models.Locator) bool

	// Enabled reports whether the locator resolves to an element that is not disabled.
	Enabled(ctx context.Context, loc models.Locator) bool

	// Text returns the trimmed visible text of the first match.
	Text(ctx context.Context, loc models.Locator) (string, error)

	// OuterHTML returns the serialised markup of the first match.
	OuterHTML(ctx context.Context, loc models.Locator) (string, error)

	Click(ctx context.Context, loc models.Locator, timeout time.Duration) error

	// Fill replaces the element value and fires input/change events. An empty text clears it.
	Fill(ctx context.Context, loc models.Locator, text string) error

	// TypeText sends text one key at a time with delay between keys.
	TypeText(ctx context.Context, loc models.Locator, text string, delay time.Duration) error

	// Screenshot captures the element at loc as PNG. A zero Locator captures the full page.
	Screenshot(ctx context.Context, loc models.Locator) ([]byte, error)

	// Evaluate runs script in the page and decodes its result into out (may be nil).
	Evaluate(ctx context.Context, script string, out interface{}) error
}

// Browser launches isolated browser sessions.
type Browser interface {
	// NewSession starts a fresh browser and returns its page plus a close func that
	// must be called exactly once on every exit path.
	NewSession(ctx context.Context) (Page, func(), error)
}
