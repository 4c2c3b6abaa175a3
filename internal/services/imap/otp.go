package imap

import (
	"regexp"
	"strconv"
	"strings"
)

// otpPatterns are tried in order; the first acceptable match wins.
// The bare-code fallbacks are permissive on purpose: the portal has changed
// its mail template before and the labelled patterns stopped matching.
var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)One Time Password \(OTP\) for login:\s*([A-Za-z0-9]{7})`),
	regexp.MustCompile(`(?i)OTP for login:\s*([A-Za-z0-9]{7})`),
	regexp.MustCompile(`(?i)OTP:\s*([A-Za-z0-9]{7})`),
	regexp.MustCompile(`(?i)\b([A-Za-z0-9]{7})\b`),
	regexp.MustCompile(`(?i)\b([A-Z0-9]{6})\b`),
	regexp.MustCompile(`(?i)\b(\d{6})\b`),
	bareFourDigitPattern,
}

var bareFourDigitPattern = regexp.MustCompile(`(?i)\b(\d{4})\b`)

// otpBlacklist rejects tokens lifted from links, domains and signatures
var otpBlacklist = []string{"http", "www", "com", "tcs", "gmail"}

const minOTPLength = 4

// ExtractOTP returns the first acceptable code in body, or "" when none is found
func ExtractOTP(body string) string {
	for _, pattern := range otpPatterns {
		for _, match := range pattern.FindAllStringSubmatch(body, -1) {
			candidate := strings.TrimSpace(match[1])
			if acceptable(candidate, pattern == bareFourDigitPattern) {
				return candidate
			}
		}
	}
	return ""
}

func acceptable(candidate string, bareFourDigit bool) bool {
	if len(candidate) < minOTPLength {
		return false
	}
	lower := strings.ToLower(candidate)
	for _, word := range otpBlacklist {
		if strings.Contains(lower, word) {
			return false
		}
	}
	// A lone four-digit number in the 1800-2099 range is far more often a year
	// or a toll-free prefix than a passcode
	if bareFourDigit {
		if n, err := strconv.Atoi(candidate); err == nil && n >= 1800 && n <= 2099 {
			return false
		}
	}
	return true
}
