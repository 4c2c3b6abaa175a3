package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// NewGeminiSolver creates a solver backed by the Gemini API
func NewGeminiSolver(ctx context.Context, config common.GeminiConfig, timeout, spacing time.Duration, logger arbor.ILogger) (*Solver, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required for captcha solving")
	}
	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	logger.Info().Str("model", model).Msg("Gemini captcha solver initialized")

	return newSolver(ProviderGemini, model, geminiGenerate(client, model), timeout, spacing, logger), nil
}

func geminiGenerate(client *genai.Client, model string) generateFunc {
	return func(ctx context.Context, png []byte) (string, error) {
		contents := []*genai.Content{{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				genai.NewPartFromText(Prompt),
				genai.NewPartFromBytes(png, "image/png"),
			},
		}}
		config := &genai.GenerateContentConfig{
			Temperature: genai.Ptr[float32](0),
		}

		resp, err := client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return "", err
		}
		return geminiText(resp), nil
	}
}

// geminiText returns the text of the first candidate that has any
func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() > 0 {
			break
		}
	}
	return text.String()
}
