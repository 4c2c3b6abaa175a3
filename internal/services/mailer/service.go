// -----------------------------------------------------------------------
// Mailer Service - result notifications over SMTP
// Sends from and to the configured account, optionally with a screenshot
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nextwatch/internal/common"
	"github.com/ternarybob/nextwatch/internal/interfaces"
	"github.com/yuin/goldmark"
)

type sendFunc func(addr string, auth smtp.Auth, from, to string, msg []byte) error

// Service implements interfaces.Notifier
type Service struct {
	config common.SMTPConfig
	shots  interfaces.ScreenshotStore
	logger arbor.ILogger
	send   sendFunc
	now    func() time.Time
}

// NewService creates a new mailer. shots may be nil; when set, stored
// screenshots are removed after each successful send.
func NewService(config common.SMTPConfig, shots interfaces.ScreenshotStore, logger arbor.ILogger) *Service {
	s := &Service{
		config: config,
		shots:  shots,
		logger: logger,
		now:    time.Now,
	}
	if config.UseTLS {
		s.send = s.sendWithTLS
	} else {
		s.send = smtpSendMail
	}
	return s
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Username != "" && s.config.Password != ""
}

// Notify sends subject and body to the configured recipient. attachmentPath
// is attached as a PNG when it names a readable file; a missing file is logged
// and the mail goes out without it.
func (s *Service) Notify(ctx context.Context, subject, body, attachmentPath string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var attachment []byte
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", attachmentPath).Msg("Attachment unreadable, sending without it")
			attachmentPath = ""
		} else {
			attachment = data
		}
	}

	msg, err := s.buildMessage(subject, body, filepath.Base(attachmentPath), attachment)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if err := s.send(addr, auth, s.config.From, s.config.To, msg); err != nil {
		s.logger.Error().Err(err).Str("subject", subject).Msg("Failed to send notification email")
		return err
	}

	s.logger.Info().
		Str("to", s.config.To).
		Str("subject", subject).
		Bool("attachment", attachment != nil).
		Msg("Notification email sent")

	if s.shots != nil {
		if err := s.shots.Cleanup(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to clean up screenshots")
		}
	}
	return nil
}

// buildMessage composes a multipart message: a text/plain body, the same body
// rendered to HTML, and an optional PNG attachment.
func (s *Service) buildMessage(subject, body, attachmentName string, attachment []byte) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetSubject(strings.TrimSpace(subject))
	h.SetAddressList("From", []*mail.Address{{Name: s.config.FromName, Address: s.config.From}})
	h.SetAddressList("To", []*mail.Address{{Address: s.config.To}})
	if err := h.GenerateMessageID(); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to generate message id")
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(markdownBody(body)), &html); err != nil {
		return nil, fmt.Errorf("failed to render HTML body: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	if err := writeInline(tw, "text/plain", body); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", html.String()); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline part: %w", err)
	}

	if attachment != nil {
		var ah mail.AttachmentHeader
		ah.SetContentType("image/png", nil)
		ah.SetFilename(attachmentName)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment: %w", err)
		}
		if _, err := w.Write(attachment); err != nil {
			return nil, fmt.Errorf("failed to write attachment: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close attachment: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, content string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

// markdownBody keeps single line breaks when the plain body is rendered as
// markdown
func markdownBody(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" && i < len(lines)-1 && strings.TrimSpace(lines[i+1]) != "" {
			lines[i] = line + "  "
		}
	}
	return strings.Join(lines, "\n")
}

func smtpSendMail(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}

// sendWithTLS sends email over an implicit TLS connection (port 465),
// falling back to STARTTLS when the direct handshake fails
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: host,
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("addr", addr).Msg("Direct TLS failed, trying STARTTLS")
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return deliver(client, auth, from, to, msg)
}

// sendWithSTARTTLS sends email using STARTTLS upgrade
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return deliver(client, auth, from, to, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from, to string, msg []byte) error {
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set mail recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
