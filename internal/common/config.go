package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Defaults carried over from the portal's observed behaviour
const (
	DefaultPortalURL         = "https://nextstep.tcs.com/campus/"
	DefaultTimeoutSeconds    = 120
	DefaultMaxLoginAttempts  = 3
	DefaultCaptchaMaxRetries = 2
	DefaultOTPSender         = "recruitment.entrylevel@tcs.com"
	DefaultOTPSubject        = "TCS NextStep: Login Email ID Verification"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Config represents the application configuration.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	Environment    string           `toml:"environment"`     // "development" or "production"
	TimeoutSeconds int              `toml:"timeout_seconds" validate:"min=10,max=3600"` // Whole-run watchdog budget
	Portal         PortalConfig     `toml:"portal"`
	Login          LoginConfig      `toml:"login"`
	OTP            OTPConfig        `toml:"otp"`
	Browser        BrowserConfig    `toml:"browser"`
	Captcha        CaptchaConfig    `toml:"captcha"`
	Gemini         GeminiConfig     `toml:"gemini"`
	Claude         ClaudeConfig     `toml:"claude"`
	IMAP           IMAPConfig       `toml:"imap"`
	SMTP           SMTPConfig       `toml:"smtp"`
	Screenshots    ScreenshotConfig `toml:"screenshots"`
	Logging        LoggingConfig    `toml:"logging"`
	Scheduler      SchedulerConfig  `toml:"scheduler"`
}

// PortalConfig identifies the target portal and the account logging in
type PortalConfig struct {
	URL   string `toml:"url" validate:"required,url"`
	Email string `toml:"email" validate:"required,email"` // Account login ID
}

type LoginConfig struct {
	MaxLoginAttempts          int  `toml:"max_login_attempts" validate:"min=1,max=10"`
	CaptchaMaxRetries         int  `toml:"captcha_max_retries" validate:"min=1,max=10"`
	NavigationTimeoutSeconds  int  `toml:"navigation_timeout_seconds" validate:"min=1"`
	ElementTimeoutSeconds     int  `toml:"element_timeout_seconds" validate:"min=1"`
	NetworkIdleTimeoutSeconds int  `toml:"network_idle_timeout_seconds" validate:"min=1"`
	SkipStatusCheck           bool `toml:"skip_status_check"` // Stop after login classification
}

// OTPConfig controls where the passcode comes from and how long to wait for it
type OTPConfig struct {
	Sender               string `toml:"sender" validate:"required"`
	Subject              string `toml:"subject" validate:"required"`
	FieldTimeoutSeconds  int    `toml:"field_timeout_seconds" validate:"min=1"`
	EnableTimeoutSeconds int    `toml:"enable_timeout_seconds" validate:"min=0"`
	SettleSeconds        int    `toml:"settle_seconds" validate:"min=0"`  // Delay before the first mailbox poll
	PollIntervalSeconds  int    `toml:"poll_interval_seconds" validate:"min=0"`
	PollAttempts         int    `toml:"poll_attempts" validate:"min=0"`
	MinLength            int    `toml:"min_length" validate:"min=1"`
}

type BrowserConfig struct {
	Headless     bool   `toml:"headless"`
	UserAgent    string `toml:"user_agent"`
	WindowWidth  int    `toml:"window_width" validate:"min=320"`
	WindowHeight int    `toml:"window_height" validate:"min=240"`
	NoSandbox    bool   `toml:"no_sandbox"`
	DisableGPU   bool   `toml:"disable_gpu"`
	ExecPath     string `toml:"exec_path"` // Optional Chrome binary override
}

// CaptchaConfig selects the vision provider used to read CAPTCHA images
type CaptchaConfig struct {
	Provider  string `toml:"provider" validate:"oneof=gemini claude"`
	Timeout   string `toml:"timeout"`    // Per-call timeout as duration string (default: "30s")
	RateLimit string `toml:"rate_limit"` // Minimum spacing between calls (default: "4s" for 15 RPM)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"` // default: "gemini-2.5-flash"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`      // default: "claude-sonnet-4-20250514"
	MaxTokens int    `toml:"max_tokens"` // default: 64
}

type IMAPConfig struct {
	Host     string `toml:"host" validate:"required,hostname"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	UseTLS   bool   `toml:"use_tls"`
}

type SMTPConfig struct {
	Host     string `toml:"host" validate:"required,hostname"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	Username string `toml:"username" validate:"required"`
	Password string `toml:"password" validate:"required"`
	From     string `toml:"from" validate:"required,email"`
	FromName string `toml:"from_name"`
	To       string `toml:"to" validate:"required,email"`
	UseTLS   bool   `toml:"use_tls"`
}

type ScreenshotConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	Dir        string   `toml:"dir"`         // Log file directory (default: "logs")
	TimeFormat string   `toml:"time_format"` // default: "15:04:05.000"
}

// SchedulerConfig lists the cron expressions used by the schedule command
type SchedulerConfig struct {
	Schedules []string `toml:"schedules"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment:    "development",
		TimeoutSeconds: DefaultTimeoutSeconds,
		Portal: PortalConfig{
			URL: DefaultPortalURL,
		},
		Login: LoginConfig{
			MaxLoginAttempts:          DefaultMaxLoginAttempts,
			CaptchaMaxRetries:         DefaultCaptchaMaxRetries,
			NavigationTimeoutSeconds:  60,
			ElementTimeoutSeconds:     10,
			NetworkIdleTimeoutSeconds: 10,
		},
		OTP: OTPConfig{
			Sender:               DefaultOTPSender,
			Subject:              DefaultOTPSubject,
			FieldTimeoutSeconds:  20,
			EnableTimeoutSeconds: 30,
			SettleSeconds:        20,
			PollIntervalSeconds:  10,
			PollAttempts:         2,
			MinLength:            4,
		},
		Browser: BrowserConfig{
			Headless:     true,
			UserAgent:    DefaultUserAgent,
			WindowWidth:  1366,
			WindowHeight: 768,
			NoSandbox:    true,
			DisableGPU:   true,
		},
		Captcha: CaptchaConfig{
			Provider:  "gemini",
			Timeout:   "30s",
			RateLimit: "4s",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 64,
		},
		IMAP: IMAPConfig{
			Host:   "imap.gmail.com",
			Port:   993,
			UseTLS: true,
		},
		SMTP: SMTPConfig{
			Host:     "smtp.gmail.com",
			Port:     465,
			FromName: "NextWatch",
			UseTLS:   true,
		},
		Screenshots: ScreenshotConfig{
			Dir: "screenshots",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			Dir:        "logs",
			TimeFormat: "15:04:05.000",
		},
		Scheduler: SchedulerConfig{
			Schedules: []string{"0 12 * * *", "0 20 * * *"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> .env -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// A missing .env is normal in production; variables may come from the process env
	_ = godotenv.Load()

	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	fillDerived(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The bare names (TCS_EMAIL, GMAIL_EMAIL, ...) match the .env layout used by existing deployments.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NEXTWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if v := firstEnv("NEXTWATCH_PORTAL_EMAIL", "TCS_EMAIL"); v != "" {
		config.Portal.Email = v
	}
	if v := os.Getenv("NEXTWATCH_PORTAL_URL"); v != "" {
		config.Portal.URL = v
	}

	if v := firstEnv("NEXTWATCH_MAIL_USERNAME", "GMAIL_EMAIL"); v != "" {
		config.IMAP.Username = v
		config.SMTP.Username = v
	}
	if v := firstEnv("NEXTWATCH_MAIL_PASSWORD", "GMAIL_APP_PASSWORD"); v != "" {
		config.IMAP.Password = v
		config.SMTP.Password = v
	}
	if v := os.Getenv("NEXTWATCH_NOTIFY_TO"); v != "" {
		config.SMTP.To = v
	}

	if v := firstEnv("NEXTWATCH_GEMINI_API_KEY", "GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := firstEnv("NEXTWATCH_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("NEXTWATCH_CAPTCHA_PROVIDER"); v != "" {
		config.Captcha.Provider = strings.ToLower(strings.TrimSpace(v))
	}

	if v := firstEnv("NEXTWATCH_HEADLESS", "HEADLESS"); v != "" {
		config.Browser.Headless = strings.ToLower(strings.TrimSpace(v)) == "true"
	}

	if v := firstEnv("NEXTWATCH_TIMEOUT_SECONDS", "SCRIPT_TIMEOUT"); v != "" {
		if seconds, ok := parseSeconds(v); ok {
			config.TimeoutSeconds = seconds
		} else {
			arbor.NewLogger().Warn().
				Str("value", v).
				Int("default", DefaultTimeoutSeconds).
				Msg("Invalid script timeout value, using default")
			config.TimeoutSeconds = DefaultTimeoutSeconds
		}
	}

	if v := os.Getenv("NEXTWATCH_MAX_LOGIN_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Login.MaxLoginAttempts = n
		}
	}
	if v := os.Getenv("NEXTWATCH_CAPTCHA_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Login.CaptchaMaxRetries = n
		}
	}

	if level := os.Getenv("NEXTWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("NEXTWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// fillDerived sets notification addresses from the mailbox account when left blank
func fillDerived(config *Config) {
	if config.SMTP.From == "" {
		config.SMTP.From = config.SMTP.Username
	}
	if config.SMTP.To == "" {
		config.SMTP.To = config.SMTP.Username
	}
}

// parseSeconds accepts "80" and "80 # comment" style values
func parseSeconds(raw string) (int, bool) {
	value := strings.TrimSpace(strings.SplitN(raw, "#", 2)[0])
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return seconds, true
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks struct constraints, provider credentials and cron schedules
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Captcha.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required when captcha.provider is gemini (set GEMINI_API_KEY)")
		}
	case "claude":
		if c.Claude.APIKey == "" {
			return fmt.Errorf("claude.api_key is required when captcha.provider is claude (set ANTHROPIC_API_KEY)")
		}
	}

	if _, err := time.ParseDuration(c.Captcha.Timeout); err != nil {
		return fmt.Errorf("invalid captcha.timeout %q: %w", c.Captcha.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Captcha.RateLimit); err != nil {
		return fmt.Errorf("invalid captcha.rate_limit %q: %w", c.Captcha.RateLimit, err)
	}

	for _, schedule := range c.Scheduler.Schedules {
		if err := ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid scheduler.schedules entry %q: %w", schedule, err)
		}
	}

	return nil
}

// ValidateSchedule validates a standard five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Timeout returns the whole-run watchdog budget
func (c *Config) Timeout() time.Duration {
	return Seconds(c.TimeoutSeconds)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Seconds converts a whole-second config value into a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
