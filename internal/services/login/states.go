package login

import (
	"fmt"

	"github.com/ternarybob/nextwatch/internal/models"
)

// State is a step of one session attempt
type State int

const (
	StateStart State = iota
	StateNavigate
	StateClickLogin
	StateEnterEmail
	StateCaptcha
	StateOTP
	StateClassify
	StatePostLogin
	// Terminal states
	StateDone    // run finished successfully
	StateFailed  // run finished with a definite failure, no further attempts
	StateRestart // discard the session and start the next attempt
)

var stateNames = map[State]string{
	StateStart:      "start",
	StateNavigate:   "navigate",
	StateClickLogin: "click_login",
	StateEnterEmail: "enter_email",
	StateCaptcha:    "captcha",
	StateOTP:        "otp",
	StateClassify:   "classify",
	StatePostLogin:  "post_login",
	StateDone:       "done",
	StateFailed:     "failed",
	StateRestart:    "restart",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the attempt loop stops at s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateRestart
}

// Signal is what a step reports back to the orchestrator
type Signal int

const (
	SignalOK      Signal = iota // step succeeded, move forward
	SignalRestart               // session is unusable, start a new attempt
	SignalFatal                 // definite failure, stop
)

func (s Signal) String() string {
	switch s {
	case SignalOK:
		return "ok"
	case SignalRestart:
		return "restart"
	case SignalFatal:
		return "fatal"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

type transitionKey struct {
	from   State
	signal Signal
}

// transitions is the complete (state, signal) -> state table.
// Pairs not listed are invalid and end the run as failed.
var transitions = map[transitionKey]State{
	{StateStart, SignalOK}: StateNavigate,

	{StateNavigate, SignalOK}:      StateClickLogin,
	{StateNavigate, SignalRestart}: StateRestart,

	{StateClickLogin, SignalOK}:      StateEnterEmail,
	{StateClickLogin, SignalRestart}: StateRestart,

	{StateEnterEmail, SignalOK}:      StateCaptcha,
	{StateEnterEmail, SignalRestart}: StateRestart,

	{StateCaptcha, SignalOK}:      StateOTP,
	{StateCaptcha, SignalRestart}: StateRestart,
	{StateCaptcha, SignalFatal}:   StateFailed,

	{StateOTP, SignalOK}:      StateClassify,
	{StateOTP, SignalRestart}: StateRestart,
	{StateOTP, SignalFatal}:   StateFailed,

	{StateClassify, SignalOK}:    StatePostLogin,
	{StateClassify, SignalFatal}: StateFailed,

	{StatePostLogin, SignalOK}:    StateDone,
	{StatePostLogin, SignalFatal}: StateFailed,
}

// Next returns the state that follows from after signal
func Next(from State, signal Signal) (State, error) {
	next, ok := transitions[transitionKey{from, signal}]
	if !ok {
		return StateFailed, fmt.Errorf("no transition from %s on %s", from, signal)
	}
	return next, nil
}

func captchaSignal(outcome models.CaptchaOutcome) Signal {
	switch outcome {
	case models.CaptchaAdvanced:
		return SignalOK
	case models.CaptchaNeedsRefresh:
		return SignalRestart
	default:
		return SignalFatal
	}
}

func otpSignal(outcome models.OTPOutcome) Signal {
	switch outcome {
	case models.OTPSubmitted:
		return SignalOK
	case models.OTPRestartRequired:
		return SignalRestart
	default:
		return SignalFatal
	}
}

// verdictSignal lets Indeterminate through to the status check
func verdictSignal(verdict models.Verdict) Signal {
	if verdict == models.VerdictFailure {
		return SignalFatal
	}
	return SignalOK
}
