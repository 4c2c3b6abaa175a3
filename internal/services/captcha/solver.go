package captcha

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"golang.org/x/time/rate"
)

// Prompt is sent with every CAPTCHA image
const Prompt = `Analyze this CAPTCHA image and extract ONLY the alphanumeric characters.
The text is typically 4-6 characters long and may include both letters and numbers.
Return ONLY the characters with no additional text, spaces, or punctuation.
If the text is unclear, make your best guess.`

const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"

	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 4 * time.Second
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// CleanAnswer strips everything except ASCII letters and digits
func CleanAnswer(raw string) string {
	return nonAlphanumeric.ReplaceAllString(strings.TrimSpace(raw), "")
}

// IsRateLimitError reports 429 and quota exhaustion responses from either provider
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(strings.ToLower(errStr), "quota")
}

// generateFunc sends one image to a vision model and returns its raw reply
type generateFunc func(ctx context.Context, png []byte) (string, error)

// Solver rate-limits and bounds calls to a vision provider and cleans the reply.
// It implements interfaces.CaptchaSolver.
type Solver struct {
	name     string
	model    string
	generate generateFunc
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   arbor.ILogger
}

func newSolver(name, model string, generate generateFunc, timeout, spacing time.Duration, logger arbor.ILogger) *Solver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &Solver{
		name:     name,
		model:    model,
		generate: generate,
		limiter:  rate.NewLimiter(limit, 1),
		timeout:  timeout,
		logger:   logger,
	}
}

// Name identifies the provider in logs
func (s *Solver) Name() string {
	return s.name
}

// Solve returns the cleaned answer. An empty answer with a nil error means the
// model replied with nothing usable.
func (s *Solver) Solve(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("empty captcha image")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.generate(callCtx, png)
	if err != nil {
		if IsRateLimitError(err) {
			s.logger.Warn().Err(err).Str("provider", s.name).Msg("Vision API rate limit hit")
		}
		return "", fmt.Errorf("%s captcha request failed: %w", s.name, err)
	}

	answer := CleanAnswer(raw)
	if answer == "" {
		s.logger.Warn().Str("provider", s.name).Str("model", s.model).Msg("Empty response from vision API")
		return "", nil
	}

	s.logger.Debug().
		Str("provider", s.name).
		Str("model", s.model).
		Dur("duration", time.Since(start)).
		Int("length", len(answer)).
		Msg("Captcha answer received")
	return answer, nil
}

// NewSolver builds the solver selected by captcha.provider
func NewSolver(ctx context.Context, config *common.Config, logger arbor.ILogger) (*Solver, error) {
	timeout, err := parseDurationOr(config.Captcha.Timeout, defaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid captcha timeout: %w", err)
	}
	spacing, err := parseDurationOr(config.Captcha.RateLimit, defaultRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid captcha rate limit: %w", err)
	}

	switch strings.ToLower(config.Captcha.Provider) {
	case "", ProviderGemini:
		return NewGeminiSolver(ctx, config.Gemini, timeout, spacing, logger)
	case ProviderClaude:
		return NewClaudeSolver(config.Claude, timeout, spacing, logger)
	default:
		return nil, fmt.Errorf("unsupported captcha provider: %s", config.Captcha.Provider)
	}
}

func parseDurationOr(raw string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
