package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// per-part read cap; alert mails are small, attachments are skipped anyway
const maxPartBytes = 5 << 20

// Message is a parsed mail reduced to what link extraction needs.
type Message struct {
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
}

// ParseMessage decodes an RFC822 message, keeping the largest text/plain and
// text/html inline parts. Unknown charsets are read as-is.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if len(raw) == 0 {
		return m, errors.New("empty message")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return m, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	m.MessageID, _ = h.MessageID()
	if s, err := h.Subject(); err == nil {
		m.Subject = strings.TrimSpace(s)
	} else {
		m.Subject = strings.TrimSpace(h.Get("Subject"))
	}
	m.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		m.From = from[0].Address
	} else {
		m.From = strings.TrimSpace(h.Get("From"))
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return m, fmt.Errorf("read part: %w", err)
		}

		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		b, err := io.ReadAll(io.LimitReader(p.Body, maxPartBytes))
		if err != nil {
			return m, fmt.Errorf("read part body: %w", err)
		}

		switch strings.ToLower(ct) {
		case "text/html":
			if len(b) > len(m.HTML) {
				m.HTML = string(b)
			}
		case "text/plain", "":
			if len(b) > len(m.Text) {
				m.Text = string(b)
			}
		}
	}
	return m, nil
}
