// Package message decodes raw inbound messages into the parts the
// ingestion pipeline cares about.
package message

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

// A decoded inbound message. Any of the fields may be empty.
type Message struct {
	Sender     string
	SenderName string
	Recipients []*gomail.Address
	Subject    string
	Text       string
	HTML       string
	Date       time.Time
}

// Returns the first recipient, if any.
func (m *Message) Recipient() *gomail.Address {
	if len(m.Recipients) == 0 {
		return nil
	}
	return m.Recipients[0]
}

// How do we select the relevant parts?
//
// 1. Attachments are never looked at.
// 2. The first text/plain inline part is the text body.
// 3. The first text/html inline part is the html body.
// 4. Everything else is ignored.
//
// Unknown charsets and transfer encodings are not fatal, the part is
// kept as is. A header that cannot be read at all is.
func Parse(raw []byte) (*Message, error) {
	// CreateReader drops the entity on an unknown transfer encoding,
	// message.Read keeps it.
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, errors.Wrap(err, "could not read message header")
	} else if entity == nil {
		return nil, errors.Wrap(err, "could not read message")
	} else if err != nil {
		slog.Debug("keeping message with unknown encoding", "err", err)
	}

	reader := gomail.NewReader(entity)
	defer reader.Close()

	msg := &Message{}
	header := reader.Header

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
		msg.SenderName = from[0].Name
	} else if value := header.Get("From"); value != "" {
		slog.Debug("could not parse from address, using raw value", "from", value, "err", err)
		msg.Sender = bareAddress(value)
	}

	if to, err := header.AddressList("To"); err == nil {
		msg.Recipients = to
	} else {
		slog.Debug("could not parse to addresses", "err", err)
	}

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = header.Get("Subject")
	}

	if date, err := header.Date(); err == nil {
		msg.Date = date
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			if !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return nil, errors.Wrap(err, "could not read message part")
			}
			slog.Debug("keeping part with unknown encoding", "err", err)
			if part == nil {
				continue
			}
		}

		inline, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			slog.Debug("found an attachment, ignoring")
			continue
		}

		// Parts without a content type are plain text.
		mediaType := "text/plain"
		if inline.Get("Content-Type") != "" {
			if mediaType, _, err = inline.ContentType(); err != nil {
				slog.Debug("could not parse part content type, ignoring", "err", err)
				continue
			}
		}

		switch mediaType {
		case "text/plain":
			if msg.Text == "" {
				if msg.Text, err = readAll(part.Body); err != nil {
					return nil, err
				}
			}

		case "text/html":
			if msg.HTML == "" {
				if msg.HTML, err = readAll(part.Body); err != nil {
					return nil, err
				}
			}

		default:
			slog.Debug("found an unrecognized part, ignoring", "type", mediaType)
		}
	}

	return msg, nil
}

func readAll(r io.Reader) (string, error) {
	value, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(err, "could not continue reading body")
	}
	return string(value), nil
}

// Best effort address out of a From value that is not RFC 5322.
func bareAddress(value string) string {
	value = strings.TrimSpace(value)
	if start := strings.LastIndex(value, "<"); start >= 0 {
		value = value[start+1:]
		if end := strings.Index(value, ">"); end >= 0 {
			value = value[:end]
		}
	}
	return strings.TrimSpace(value)
}
