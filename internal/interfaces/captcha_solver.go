package interfaces

import "context"

// CaptchaSolver reads the text out of a CAPTCHA image.
type CaptchaSolver interface {
	// Solve returns the cleaned alphanumeric answer for a PNG image.
	// An empty string with a nil error means the model gave no usable answer.
	Solve(ctx context.Context, png []byte) (string, error)

	// Name identifies the backing provider in logs.
	Name() string
}
