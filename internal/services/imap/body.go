package imap

import (
	"fmt"
	"io"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/emersion/go-message/mail"
)

// parsedMessage is the part of a fetched email the OTP search looks at
type parsedMessage struct {
	From    string
	Subject string
	Body    string
}

// parseMessage reads headers and the concatenated text of every inline
// text/plain and text/html part. HTML is converted to plain text first.
func parseMessage(r io.Reader) (*parsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := &parsedMessage{}

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parts := make([]string, 0, len(from))
		for _, addr := range from {
			parts = append(parts, addr.String())
		}
		msg.From = strings.Join(parts, ", ")
	} else {
		msg.From = mr.Header.Get("From")
	}

	var body strings.Builder
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()

		switch {
		case strings.HasPrefix(contentType, "text/plain"), contentType == "":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			body.Write(b)
			body.WriteString("\n")
		case strings.HasPrefix(contentType, "text/html"):
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			body.WriteString(htmlToText(string(b)))
			body.WriteString("\n")
		}
	}

	msg.Body = strings.TrimSpace(body.String())
	return msg, nil
}

// htmlToText converts an HTML email part to readable text, falling back to the raw markup
func htmlToText(html string) string {
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(html)
	if err != nil {
		return html
	}
	return text
}
