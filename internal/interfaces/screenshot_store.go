package interfaces

import (
	"context"

	"github.com/ternarybob/nextwatch/internal/models"
)

// ScreenshotStore keeps diagnostic screenshots on local disk.
type ScreenshotStore interface {
	// Save writes png under a timestamped name and returns the path.
	Save(name string, png []byte) (string, error)

	// Capture takes a screenshot of loc (zero Locator for the full page) and saves it.
	// Failures are logged and yield an empty path.
	Capture(ctx context.Context, page Page, name string, loc models.Locator) string

	// Cleanup removes every stored screenshot.
	Cleanup() error
}
