package interfaces

import "context"

// Notifier delivers the run result to the account owner.
type Notifier interface {
	// Notify sends subject and a plain-text body with an optional PNG attachment
	// (attachmentPath may be empty).
	Notify(ctx context.Context, subject, body, attachmentPath string) error
}
