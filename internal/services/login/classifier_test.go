package login

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/models"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(p *fakePage)
		expected models.Verdict
	}{
		{
			name:     "nothing recognisable",
			setup:    func(p *fakePage) {},
			expected: models.VerdictIndeterminate,
		},
		{
			name: "network idle timeout",
			setup: func(p *fakePage) {
				p.idleErr = errors.New("timeout")
				p.show(SuccessLocators[0])
			},
			expected: models.VerdictIndeterminate,
		},
		{
			name: "error with text",
			setup: func(p *fakePage) {
				p.show(ErrorLocators[1])
				p.texts[ErrorLocators[1].String()] = "Invalid OTP"
			},
			expected: models.VerdictFailure,
		},
		{
			name: "error beats success",
			setup: func(p *fakePage) {
				p.show(ErrorLocators[0], SuccessLocators[0])
				p.texts[ErrorLocators[0].String()] = "Something went wrong"
			},
			expected: models.VerdictFailure,
		},
		{
			name: "empty error container is ignored",
			setup: func(p *fakePage) {
				p.show(ErrorLocators[2], SuccessLocators[2])
				p.texts[ErrorLocators[2].String()] = ""
			},
			expected: models.VerdictSuccess,
		},
		{
			name: "unreadable error text is ignored",
			setup: func(p *fakePage) {
				p.show(ErrorLocators[6])
			},
			expected: models.VerdictIndeterminate,
		},
		{
			name: "logout link",
			setup: func(p *fakePage) {
				p.show(SuccessLocators[0])
			},
			expected: models.VerdictSuccess,
		},
		{
			name: "welcome heading",
			setup: func(p *fakePage) {
				p.show(SuccessLocators[3])
			},
			expected: models.VerdictSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			tt.setup(page)
			classifier := NewClassifier(&fakeStore{}, arbor.NewLogger(), 0)

			assert.Equal(t, tt.expected, classifier.Classify(context.Background(), page))
		})
	}
}
