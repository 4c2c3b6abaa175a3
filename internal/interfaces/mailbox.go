package interfaces

import (
	"context"

	"github.com/ternarybob/nextwatch/internal/models"
)

// Mailbox retrieves one-time passcodes from an inbox.
type Mailbox interface {
	// Poll opens a connection, searches for matching unseen mail within the
	// filter's retry budget, and closes the connection before returning.
	// code is empty when nothing usable was found; body is the raw text of the
	// last examined message, if any.
	Poll(ctx context.Context, filter models.MailFilter) (code string, body string, err error)
}
