package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
	"github.com/ternarybob/nextwatch/internal/services/browser"
	"github.com/ternarybob/nextwatch/internal/services/captcha"
	"github.com/ternarybob/nextwatch/internal/services/imap"
	"github.com/ternarybob/nextwatch/internal/services/login"
	"github.com/ternarybob/nextwatch/internal/services/mailer"
	"github.com/ternarybob/nextwatch/internal/services/screenshots"
	"github.com/ternarybob/nextwatch/internal/services/status"
)

// App holds all components of one portal check
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Screenshots   *screenshots.Service
	Browser       interfaces.Browser
	Solver        interfaces.CaptchaSolver
	Mailbox       interfaces.Mailbox
	Notifier      interfaces.Notifier
	StatusService interfaces.StatusChecker
	Orchestrator  *login.Orchestrator
}

// New builds every service from cfg. ctx is only used by providers whose
// clients need one at construction.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("captcha_provider", app.Solver.Name()).
		Str("screenshots", app.Screenshots.Dir()).
		Bool("status_check", !cfg.Login.SkipStatusCheck).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config

	// 1. Local collaborators
	a.Screenshots = screenshots.NewService(cfg.Screenshots.Dir, a.Logger)
	a.Browser = browser.NewChromeDPBrowser(cfg.Browser, a.Logger)

	// 2. External collaborators
	solver, err := captcha.NewSolver(ctx, cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create captcha solver: %w", err)
	}
	a.Solver = solver

	a.Mailbox = imap.NewService(cfg.IMAP, a.Logger)
	a.Notifier = mailer.NewService(cfg.SMTP, a.Screenshots, a.Logger)
	a.StatusService = status.NewService(a.Screenshots, a.Notifier, a.Logger, status.DefaultOptions())

	// 3. Login flow
	timings := login.TimingsFromConfig(cfg)
	helper := login.NewElementHelper(a.Logger, timings.FieldSettle)

	filter := models.MailFilter{
		Sender:          cfg.OTP.Sender,
		SubjectContains: cfg.OTP.Subject,
		Interval:        timings.OTPPollEvery,
		MaxAttempts:     cfg.OTP.PollAttempts,
	}

	captchaCycle := login.NewCaptchaCycle(a.Solver, a.Screenshots, helper, a.Logger, timings, cfg.Login.CaptchaMaxRetries)
	otpCycle := login.NewOTPCycle(a.Mailbox, a.Screenshots, helper, a.Logger, timings, filter, cfg.OTP.MinLength)
	classifier := login.NewClassifier(a.Screenshots, a.Logger, timings.NetworkIdle)

	a.Orchestrator = login.NewOrchestrator(
		a.Browser,
		captchaCycle,
		otpCycle,
		classifier,
		a.StatusService,
		a.Screenshots,
		helper,
		a.Logger,
		login.Options{
			PortalURL:       cfg.Portal.URL,
			Email:           cfg.Portal.Email,
			MaxAttempts:     cfg.Login.MaxLoginAttempts,
			SkipStatusCheck: cfg.Login.SkipStatusCheck,
			Timings:         timings,
		},
	)

	return nil
}

// Run performs one full portal check
func (a *App) Run(ctx context.Context) models.RunResult {
	return a.Orchestrator.Run(ctx)
}
