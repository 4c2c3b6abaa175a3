// -----------------------------------------------------------------------
// Screenshot Service - diagnostic PNG files for each login step
// -----------------------------------------------------------------------

package screenshots

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Service stores screenshots under a single directory
type Service struct {
	dir    string
	logger arbor.ILogger
	now    func() time.Time
}

// NewService creates a screenshot store rooted at dir
func NewService(dir string, logger arbor.ILogger) *Service {
	return &Service{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the directory screenshots are written to
func (s *Service) Dir() string {
	return s.dir
}

// Save writes png to screenshot_<timestamp>_<name>.png
func (s *Service) Save(name string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty screenshot for %s", name)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	safe := unsafeName.ReplaceAllString(name, "_")
	if len(safe) > 50 {
		safe = safe[:50]
	}

	timestamp := s.now().Format("20060102_150405.000")
	path := filepath.Join(s.dir, fmt.Sprintf("screenshot_%s_%s.png", timestamp, safe))

	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Screenshot saved")
	return path, nil
}

// Capture screenshots loc (or the full page for a zero Locator) and saves it.
// Capture is best-effort: failures are logged and return an empty path.
func (s *Service) Capture(ctx context.Context, page interfaces.Page, name string, loc models.Locator) string {
	png, err := page.Screenshot(ctx, loc)
	if err != nil && loc.CSS != "" {
		s.logger.Warn().Err(err).Str("selector", loc.String()).Msg("Failed to capture element, falling back to full page")
		png, err = page.Screenshot(ctx, models.Locator{})
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to take screenshot")
		return ""
	}

	path, err := s.Save(name, png)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("Failed to store screenshot")
		return ""
	}
	return path
}

// Cleanup removes all files from the screenshots directory
func (s *Service) Cleanup() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read screenshots directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("Failed to delete screenshot")
			continue
		}
		removed++
	}

	s.logger.Info().Int("removed", removed).Msg("Cleaned up screenshots")
	return nil
}
