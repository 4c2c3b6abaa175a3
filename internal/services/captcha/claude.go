package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
)

const (
	defaultClaudeModel     = "claude-sonnet-4-20250514"
	defaultClaudeMaxTokens = 64
)

// NewClaudeSolver creates a solver backed by the Anthropic Messages API
func NewClaudeSolver(config common.ClaudeConfig, timeout, spacing time.Duration, logger arbor.ILogger) (*Solver, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required for captcha solving")
	}
	model := config.Model
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Info().Str("model", model).Int("max_tokens", maxTokens).Msg("Claude captcha solver initialized")

	return newSolver(ProviderClaude, model, claudeGenerate(client, model, maxTokens), timeout, spacing, logger), nil
}

func claudeGenerate(client anthropic.Client, model string, maxTokens int) generateFunc {
	return func(ctx context.Context, png []byte) (string, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(png)),
					anthropic.NewTextBlock(Prompt),
				),
			},
		}

		resp, err := client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}

		var text strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return text.String(), nil
	}
}
