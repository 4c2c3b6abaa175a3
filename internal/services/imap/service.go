// -----------------------------------------------------------------------
// IMAP Service - one-time passcode retrieval from the account inbox
// Each Poll opens its own connection and logs out before returning
// -----------------------------------------------------------------------

package imap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/models"
)

// maxMessagesToScan bounds how many of the newest matches are fetched
const maxMessagesToScan = 10

// mailClient is the subset of *client.Client used by Poll
type mailClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type dialFunc func(addr string, useTLS bool) (mailClient, error)

func dialIMAP(addr string, useTLS bool) (mailClient, error) {
	if useTLS {
		return client.DialTLS(addr, nil)
	}
	return client.Dial(addr)
}

// Service implements interfaces.Mailbox over IMAP
type Service struct {
	config common.IMAPConfig
	logger arbor.ILogger
	dial   dialFunc
}

// NewService creates a new IMAP mailbox
func NewService(config common.IMAPConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
		dial:   dialIMAP,
	}
}

// IsConfigured checks if IMAP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Username != "" && s.config.Password != ""
}

// Poll searches for unseen mail matching filter, re-searching up to
// filter.MaxAttempts times, and returns the first passcode found in the newest
// matches. A message that matches the subject but has no code ends the search
// with an empty code and its body.
func (s *Service) Poll(ctx context.Context, filter models.MailFilter) (string, string, error) {
	if !s.IsConfigured() {
		return "", "", fmt.Errorf("IMAP not configured")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	c, err := s.dial(addr, s.config.UseTLS)
	if err != nil {
		return "", "", fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer func() {
		if err := c.Logout(); err != nil {
			s.logger.Debug().Err(err).Msg("IMAP logout failed")
		}
	}()

	if err := c.Login(s.config.Username, s.config.Password); err != nil {
		return "", "", fmt.Errorf("IMAP login failed: %w", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		return "", "", fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := searchCriteria(filter)

	seqNums, err := c.Search(criteria)
	if err != nil {
		return "", "", fmt.Errorf("failed to search for unseen messages: %w", err)
	}

	for attempt := 1; len(seqNums) == 0 && attempt <= filter.MaxAttempts; attempt++ {
		s.logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", filter.MaxAttempts).
			Dur("wait", filter.Interval).
			Msg("No matching emails yet, waiting")

		if !wait(ctx, filter.Interval) {
			return "", "", ctx.Err()
		}

		seqNums, err = c.Search(criteria)
		if err != nil {
			return "", "", fmt.Errorf("failed to search for unseen messages: %w", err)
		}
	}

	if len(seqNums) == 0 {
		s.logger.Warn().Msg("No emails found matching criteria after maximum attempts")
		return "", "", nil
	}

	if len(seqNums) > maxMessagesToScan {
		seqNums = seqNums[len(seqNums)-maxMessagesToScan:]
	}
	s.logger.Info().Int("count", len(seqNums)).Msg("Found matching unseen emails")

	// Newest first
	for i := len(seqNums) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}

		msg, err := s.fetch(c, seqNums[i])
		if err != nil {
			s.logger.Warn().Err(err).Int64("seq", int64(seqNums[i])).Msg("Failed to fetch email")
			continue
		}

		if filter.Sender != "" && !containsFold(msg.From, filter.Sender) {
			continue
		}
		if filter.SubjectContains != "" && !containsFold(msg.Subject, filter.SubjectContains) {
			s.logger.Debug().Str("subject", msg.Subject).Msg("Skipping email, subject does not match")
			continue
		}

		if code := ExtractOTP(msg.Body); code != "" {
			s.logger.Info().Int64("seq", int64(seqNums[i])).Msg("Found OTP code")
			return code, msg.Body, nil
		}

		if filter.SubjectContains != "" {
			s.logger.Warn().Str("subject", msg.Subject).Msg("Email matched subject filter but no OTP found")
			return "", msg.Body, nil
		}
	}

	s.logger.Warn().Msg("No OTP code found in any matching emails")
	return "", "", nil
}

// fetch downloads and parses one message. Fetching BODY[] marks it seen so a
// later run cannot pick up the same code.
func (s *Service) fetch(c mailClient, seqNum uint32) (*parsedMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNum)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var parsed *parsedMessage
	var parseErr error
	for msg := range messages {
		if msg == nil || parsed != nil {
			continue
		}
		r := msg.GetBody(section)
		if r == nil {
			parseErr = fmt.Errorf("no body section")
			continue
		}
		parsed, parseErr = parseMessage(r)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if parsed == nil {
		return nil, fmt.Errorf("message %d not returned", seqNum)
	}
	return parsed, nil
}

func searchCriteria(filter models.MailFilter) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if filter.Sender != "" {
		criteria.Header.Add("From", filter.Sender)
	}
	if filter.SubjectContains != "" {
		criteria.Header.Add("Subject", filter.SubjectContains)
	}
	return criteria
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// wait sleeps for d; false means ctx ended first
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
