package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/ternarybob/nextwatch/internal/models"
)

// fakePage is a scripted page. Element state is keyed by Locator.String().
type fakePage struct {
	mu sync.Mutex

	visible  map[string]bool
	disabled map[string]bool
	texts    map[string]string
	url      string

	navigateErr   error
	idleErr       error
	screenshotErr error
	clickErr      map[string]error

	// onClick runs after a successful click, letting a test move the page forward
	onClick func(p *fakePage, loc models.Locator)
	// evaluate answers scripts; nil leaves out untouched
	evaluate func(script string, out interface{}) error

	clicks  []string
	fills   []string
	typed   []string
	scripts int
	// typeHook runs inside TypeText, used to stall the OTP step
	typeHook func(ctx context.Context)
}

func newFakePage() *fakePage {
	return &fakePage{
		visible:  map[string]bool{},
		disabled: map[string]bool{},
		texts:    map[string]string{},
		clickErr: map[string]error{},
		url:      "https://portal.example/campus/",
	}
}

func (p *fakePage) show(locs ...models.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, loc := range locs {
		p.visible[loc.String()] = true
	}
}

func (p *fakePage) hide(locs ...models.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, loc := range locs {
		delete(p.visible, loc.String())
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) WaitFor(ctx context.Context, loc models.Locator, state models.ElementState, timeout time.Duration) bool {
	visible := p.Visible(ctx, loc)
	if state == models.StateHidden {
		return !visible
	}
	return visible
}

func (p *fakePage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return p.idleErr
}

func (p *fakePage) Visible(ctx context.Context, loc models.Locator) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[loc.String()]
}

func (p *fakePage) Enabled(ctx context.Context, loc models.Locator) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[loc.String()] && !p.disabled[loc.String()]
}

func (p *fakePage) Text(ctx context.Context, loc models.Locator) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.texts[loc.String()]
	if !ok {
		return "", fmt.Errorf("no text for %s", loc)
	}
	return text, nil
}

func (p *fakePage) OuterHTML(ctx context.Context, loc models.Locator) (string, error) {
	return "", errors.New("not scripted")
}

func (p *fakePage) Click(ctx context.Context, loc models.Locator, timeout time.Duration) error {
	p.mu.Lock()
	if err := p.clickErr[loc.String()]; err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.visible[loc.String()] {
		p.mu.Unlock()
		return fmt.Errorf("element %s not visible", loc)
	}
	p.clicks = append(p.clicks, loc.String())
	hook := p.onClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, loc)
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, loc models.Locator, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fills = append(p.fills, loc.String()+"="+text)
	return nil
}

func (p *fakePage) TypeText(ctx context.Context, loc models.Locator, text string, delay time.Duration) error {
	if p.typeHook != nil {
		p.typeHook(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, text)
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context, loc models.Locator) ([]byte, error) {
	if p.screenshotErr != nil {
		return nil, p.screenshotErr
	}
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	p.mu.Lock()
	p.scripts++
	hook := p.evaluate
	p.mu.Unlock()

	if hook != nil {
		return hook(script, out)
	}
	return nil
}

func (p *fakePage) clickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clicks)
}

// fakeBrowser hands out pages from newPage and counts open sessions
type fakeBrowser struct {
	mu       sync.Mutex
	newPage  func(session int) *fakePage
	err      error
	sessions int
	open     int
	maxOpen  int
	closed   int
}

func (b *fakeBrowser) NewSession(ctx context.Context) (interfaces.Page, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, nil, b.err
	}
	b.sessions++
	b.open++
	if b.open > b.maxOpen {
		b.maxOpen = b.open
	}
	page := b.newPage(b.sessions)

	var once sync.Once
	return page, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.open--
			b.closed++
		})
	}, nil
}

// fakeSolver returns answers in order, then empty strings
type fakeSolver struct {
	answers []string
	err     error
	calls   int
}

func (s *fakeSolver) Solve(ctx context.Context, png []byte) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.calls <= len(s.answers) {
		return s.answers[s.calls-1], nil
	}
	return "", nil
}

func (s *fakeSolver) Name() string { return "fake" }

// fakeMailbox returns codes in order, then nothing
type fakeMailbox struct {
	codes   []string
	err     error
	calls   int
	filters []models.MailFilter
}

func (m *fakeMailbox) Poll(ctx context.Context, filter models.MailFilter) (string, string, error) {
	m.calls++
	m.filters = append(m.filters, filter)
	if m.err != nil {
		return "", "", m.err
	}
	if m.calls <= len(m.codes) {
		code := m.codes[m.calls-1]
		return code, "Your OTP for login: " + code, nil
	}
	return "", "", nil
}

// fakeStore records screenshot names without touching disk
type fakeStore struct {
	mu    sync.Mutex
	names []string
}

func (s *fakeStore) Save(name string, png []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "/tmp/" + name + ".png", nil
}

func (s *fakeStore) Capture(ctx context.Context, page interfaces.Page, name string, loc models.Locator) string {
	png, err := page.Screenshot(ctx, loc)
	if err != nil {
		return ""
	}
	path, _ := s.Save(name, png)
	return path
}

func (s *fakeStore) Cleanup() error { return nil }

func (s *fakeStore) has(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.names {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// fakeStatus returns a fixed report
type fakeStatus struct {
	report *models.StatusReport
	err    error
	calls  int
}

func (s *fakeStatus) Check(ctx context.Context, page interfaces.Page) (*models.StatusReport, error) {
	s.calls++
	return s.report, s.err
}

// zeroTimings removes every delay so flows run instantly
func zeroTimings() Timings {
	return Timings{
		Navigation:  time.Second,
		Element:     time.Second,
		NetworkIdle: time.Second,
		OTPField:    time.Second,
	}
}

// portalPage returns a page with the landing controls visible. Clicking Next
// moves to the OTP section when advance is true.
func portalPage(advance bool) *fakePage {
	page := newFakePage()
	page.show(loginLinkLocator, emailInputLocator, captchaImageLocator, captchaInputLocator, NextButtonCandidates[0])
	page.onClick = func(p *fakePage, loc models.Locator) {
		if loc == NextButtonCandidates[0] && advance {
			p.hide(captchaImageLocator, captchaInputLocator, NextButtonCandidates[0])
			p.show(otpHeaderLocator, otpInputLocator, otpSubmitLocator)
		}
		if loc == otpSubmitLocator {
			p.hide(otpHeaderLocator, otpInputLocator, otpSubmitLocator)
			p.show(SuccessLocators[0])
		}
	}
	page.evaluate = func(script string, out interface{}) error {
		if b, ok := out.(*bool); ok {
			*b = strings.Contains(script, "!input.disabled")
		}
		return nil
	}
	return page
}

type harness struct {
	browser *fakeBrowser
	solver  *fakeSolver
	mailbox *fakeMailbox
	store   *fakeStore
	status  *fakeStatus
	logger  arbor.ILogger
	timings Timings
}

func newHarness(newPage func(session int) *fakePage) *harness {
	return &harness{
		browser: &fakeBrowser{newPage: newPage},
		solver:  &fakeSolver{},
		mailbox: &fakeMailbox{},
		store:   &fakeStore{},
		status:  &fakeStatus{report: &models.StatusReport{Status: "No JL", Notified: true}},
		logger:  arbor.NewLogger(),
		timings: zeroTimings(),
	}
}

func (h *harness) orchestrator(maxAttempts int) *Orchestrator {
	helper := NewElementHelper(h.logger, 0)
	filter := models.MailFilter{Sender: "sender@example.com", SubjectContains: "OTP", MaxAttempts: 2}
	return NewOrchestrator(
		h.browser,
		NewCaptchaCycle(h.solver, h.store, helper, h.logger, h.timings, 2),
		NewOTPCycle(h.mailbox, h.store, helper, h.logger, h.timings, filter, 4),
		NewClassifier(h.store, h.logger, h.timings.NetworkIdle),
		h.status,
		h.store,
		helper,
		h.logger,
		Options{
			PortalURL:   "https://portal.example/campus/",
			Email:       "user@example.com",
			MaxAttempts: maxAttempts,
			Timings:     h.timings,
		},
	)
}
