package login

import (
	"time"

	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

// Portal page elements
var (
	loginLinkLocator    = models.HasText("a.updatesClick", "Login")
	emailInputLocator   = models.CSS(`input.form-control.loginID[type="text"][name="loginID"]`)
	captchaImageLocator = models.CSS(`label.control-label.input-sm.ng-binding[style*="letter-spacing: 20px"]`)
	captchaInputLocator = models.CSS(`input#userCaptcha[ng-model="userVO.userCaptcha"][name="userCaptcha"]`)
	otpHeaderLocator    = models.HasText("div#loginSection", "OTP Verification")
	otpInputLocator     = models.CSS("input#loginOtp")
	otpSubmitLocator    = models.CSS("button#verifyLoginOTPBtn")
)

// refreshErrorLocators indicate the server-side session is gone
var refreshErrorLocators = []models.Locator{
	models.HasText("div.error-message", "session"),
	models.HasText("div.error-message", "expired"),
	models.HasText("div.error-message", "invalid"),
}

// ErrorLocators are scanned in order after login; the first visible one with text means failure
var ErrorLocators = []models.Locator{
	models.CSS("div.error-message"),
	models.CSS("div.alert-danger"),
	models.CSS(`div[class*="error"]`),
	models.CSS(`div[ng-show*="error"]`),
	models.CSS("span.error"),
	models.CSS("p.error"),
	models.CSS("div.alert"),
	models.CSS(`div[role="alert"]`),
	models.CSS(".error-text"),
	models.CSS(".validation-error"),
	models.CSS(".login-error"),
	models.CSS(".message-error"),
}

// SuccessLocators are scanned in order when no error is shown
var SuccessLocators = []models.Locator{
	models.CSS(`a[href*="logout"]`),
	models.CSS("div.welcome-message"),
	models.CSS("div.dashboard"),
	models.HasText("h1", "Welcome"),
	models.CSS(`div[class*="success"]`),
}

// Timings holds every bounded wait used by the login flow
type Timings struct {
	Navigation     time.Duration
	Element        time.Duration // login link, email field, CAPTCHA input
	NetworkIdle    time.Duration
	OTPField       time.Duration
	OTPEnable      time.Duration
	OTPSettle      time.Duration // mail delivery latency before polling
	ClickSettle    time.Duration
	FieldSettle    time.Duration // between clear and fill
	ValidateSettle time.Duration // client-side validation after filling CAPTCHA
	RetrySettle    time.Duration
	KeyDelay       time.Duration
	SubmitSettle   time.Duration
	OTPPollEvery   time.Duration
}

// TimingsFromConfig derives production timings from configuration
func TimingsFromConfig(config *common.Config) Timings {
	return Timings{
		Navigation:     common.Seconds(config.Login.NavigationTimeoutSeconds),
		Element:        common.Seconds(config.Login.ElementTimeoutSeconds),
		NetworkIdle:    common.Seconds(config.Login.NetworkIdleTimeoutSeconds),
		OTPField:       common.Seconds(config.OTP.FieldTimeoutSeconds),
		OTPEnable:      common.Seconds(config.OTP.EnableTimeoutSeconds),
		OTPSettle:      common.Seconds(config.OTP.SettleSeconds),
		ClickSettle:    2 * time.Second,
		FieldSettle:    200 * time.Millisecond,
		ValidateSettle: 2 * time.Second,
		RetrySettle:    2 * time.Second,
		KeyDelay:       100 * time.Millisecond,
		SubmitSettle:   1 * time.Second,
		OTPPollEvery:   common.Seconds(config.OTP.PollIntervalSeconds),
	}
}
