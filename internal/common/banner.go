package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the effective run settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("NextWatch", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("portal", config.Portal.URL).
		Str("captcha_provider", config.Captcha.Provider).
		Bool("headless", config.Browser.Headless).
		Int("timeout_seconds", config.TimeoutSeconds).
		Int("max_login_attempts", config.Login.MaxLoginAttempts).
		Msg("Starting portal login automation")
}
