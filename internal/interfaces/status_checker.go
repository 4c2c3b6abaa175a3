package interfaces

import (
	"context"

	"github.com/ternarybob/nextwatch/internal/models"
)

// StatusChecker runs the post-login action on an authenticated page.
type StatusChecker interface {
	Check(ctx context.Context, page Page) (*models.StatusReport, error)
}
