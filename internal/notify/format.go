package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ksdme/mailhook/internal/extract"
	"github.com/ksdme/mailhook/internal/models"
)

const (
	defaultPreviewLimit = 1000
	defaultMaxLinks     = 5

	ellipsis = "..."
)

// A single named value of a notification.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// A transport agnostic notification. Transports pick whichever of the
// plain text or the fields suits them and apply their own size limits.
type Payload struct {
	Title     string
	Text      string
	Fields    []Field
	Filename  string
	Timestamp time.Time
	Error     bool
}

// Display names that are not part of the persisted record.
type Names struct {
	Sender    string
	Recipient string
}

// Builds notification payloads for stored emails and failures.
type Formatter struct {
	location     *time.Location
	previewLimit int
	maxLinks     int
	now          func() time.Time
}

// Receipt times are rendered in the location. Non positive limits fall
// back to the defaults.
func NewFormatter(location *time.Location, previewLimit int, maxLinks int) *Formatter {
	if location == nil {
		location = time.UTC
	}
	if previewLimit <= 0 {
		previewLimit = defaultPreviewLimit
	}
	if maxLinks <= 0 {
		maxLinks = defaultMaxLinks
	}

	return &Formatter{
		location:     location,
		previewLimit: previewLimit,
		maxLinks:     maxLinks,
		now:          time.Now,
	}
}

// Summarizes a stored email. The email must already carry its id.
func (f *Formatter) Format(email *models.Email, content extract.Content, names Names) *Payload {
	from := party(names.Sender, email.Sender)
	to := party(names.Recipient, email.Recipient)
	date := fmt.Sprintf("%s (%s)", email.ReceivedAt.In(f.location).Format("Mon, 02 Jan 2006 15:04:05"), f.location)
	links := f.links(content.Links)

	body := email.BodyText
	if body == "" {
		body = content.Text
	}
	code, hasCode := extract.OneTimeCode(body)

	preview := "(No text content)"
	if strings.TrimSpace(body) != "" {
		preview = truncate(strings.TrimSpace(body), f.previewLimit)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "📤 From: %s\n", from)
	fmt.Fprintf(&text, "📥 To: %s\n", to)
	fmt.Fprintf(&text, "🔐 ID: %d\n", email.ID)
	fmt.Fprintf(&text, "📅 Date: %s\n", date)
	fmt.Fprintf(&text, "🧾 Subject: %s\n", email.Subject)
	fmt.Fprintf(&text, "\n🔗 Links:\n%s\n", links)
	if hasCode {
		fmt.Fprintf(&text, "\n🔑 Code: %s\n", code)
	}
	fmt.Fprintf(&text, "\n💌 Message:\n%s", preview)

	fields := []Field{
		{Name: "📤 From", Value: from, Inline: true},
		{Name: "📥 To", Value: to, Inline: true},
		{Name: "🔐 ID", Value: fmt.Sprint(email.ID), Inline: true},
		{Name: "📅 Date", Value: date, Inline: true},
		{Name: "🧾 Subject", Value: email.Subject},
		{Name: "🔗 Links", Value: links},
	}
	if hasCode {
		fields = append(fields, Field{Name: "🔑 Code", Value: code, Inline: true})
	}
	fields = append(fields, Field{Name: "💌 Message", Value: preview})

	return &Payload{
		Title:     "📧 New Email Received",
		Text:      text.String(),
		Fields:    fields,
		Filename:  fmt.Sprintf("email-%d.txt", email.ID),
		Timestamp: email.ReceivedAt,
	}
}

// Describes a failure to process an email.
func (f *Formatter) FormatError(err error) *Payload {
	return &Payload{
		Title:     "⚠️ Error processing email",
		Text:      fmt.Sprintf("Error processing email: %v", err),
		Fields:    []Field{{Name: "Error", Value: err.Error()}},
		Filename:  "error-notification.txt",
		Timestamp: f.now(),
		Error:     true,
	}
}

func (f *Formatter) links(links []extract.Link) string {
	if len(links) == 0 {
		return "No links found."
	}

	shown := links
	if len(shown) > f.maxLinks {
		shown = shown[:f.maxLinks]
	}

	lines := make([]string, 0, len(shown)+1)
	for _, link := range shown {
		lines = append(lines, fmt.Sprintf("- %s: %s", link.Text, link.Href))
	}
	if hidden := len(links) - len(shown); hidden > 0 {
		lines = append(lines, fmt.Sprintf("+%d more", hidden))
	}

	return strings.Join(lines, "\n")
}

func party(name string, address string) string {
	if name == "" {
		name = "No Name"
	}
	return fmt.Sprintf("%s (%s)", name, address)
}

// Cuts the value down to limit characters, marking the cut with an
// ellipsis that counts towards the limit.
func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}

	runes := []rune(value)
	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
