package models

// CaptchaOutcome is the result of one CAPTCHA resolution cycle.
type CaptchaOutcome int

const (
	// CaptchaRetry means the attempt failed and the cycle may try again in place.
	CaptchaRetry CaptchaOutcome = iota
	// CaptchaAdvanced means the OTP entry page is now visible.
	CaptchaAdvanced
	// CaptchaNeedsRefresh means the page signalled a dead session; the browser must be restarted.
	CaptchaNeedsRefresh
	// CaptchaExhausted means every retry failed without advancing or asking for a refresh.
	CaptchaExhausted
)

func (o CaptchaOutcome) String() string {
	switch o {
	case CaptchaRetry:
		return "retry"
	case CaptchaAdvanced:
		return "advanced"
	case CaptchaNeedsRefresh:
		return "needs_refresh"
	case CaptchaExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// OTPOutcome is the result of one OTP resolution cycle.
type OTPOutcome int

const (
	// OTPFailed means the OTP field never appeared. Not restartable.
	OTPFailed OTPOutcome = iota
	// OTPSubmitted means the code was typed and the login control clicked.
	OTPSubmitted
	// OTPDisabled means the code was typed but the login control stayed disabled. Not restartable.
	OTPDisabled
	// OTPRestartRequired means no usable code was retrieved; the session must be discarded.
	OTPRestartRequired
)

func (o OTPOutcome) String() string {
	switch o {
	case OTPFailed:
		return "failed"
	case OTPSubmitted:
		return "submitted"
	case OTPDisabled:
		return "disabled"
	case OTPRestartRequired:
		return "restart_required"
	default:
		return "unknown"
	}
}

// Verdict is the tri-state classification of the page after the OTP submit.
type Verdict int

const (
	VerdictIndeterminate Verdict = iota
	VerdictSuccess
	VerdictFailure
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	default:
		return "indeterminate"
	}
}

// RunOutcome is the overall result of one orchestrated run.
type RunOutcome int

const (
	RunFailure RunOutcome = iota
	RunSuccess
	RunIndeterminate
)

func (o RunOutcome) String() string {
	switch o {
	case RunSuccess:
		return "success"
	case RunIndeterminate:
		return "indeterminate"
	default:
		return "failure"
	}
}

// Process exit codes.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitIndeterminate = 2
	ExitInterrupted   = 130
)

// ExitCode maps the run outcome onto the process exit code.
func (o RunOutcome) ExitCode() int {
	switch o {
	case RunSuccess:
		return ExitSuccess
	case RunIndeterminate:
		return ExitIndeterminate
	default:
		return ExitFailure
	}
}
