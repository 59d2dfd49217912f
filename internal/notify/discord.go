package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Limits enforced by the Discord API.
const (
	discordContentLimit     = 2000
	discordTitleLimit       = 256
	discordFieldNameLimit   = 256
	discordFieldValueLimit  = 1024
	discordFieldCountLimit  = 25
	discordDescriptionLimit = 4096
)

const (
	DiscordStyleFile  = "file"
	DiscordStyleEmbed = "embed"
)

const (
	discordColor      = 2354155
	discordErrorColor = 15548997
)

// Posts notifications to a Discord webhook, either as a text file
// attachment or as a rich embed.
type Discord struct {
	webhookURL string
	style      string
	client     *http.Client
}

func NewDiscord(webhookURL string, style string, client *http.Client) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if style != DiscordStyleEmbed {
		style = DiscordStyleFile
	}

	return &Discord{webhookURL: webhookURL, style: style, client: client}
}

func (d *Discord) Name() string {
	return "discord"
}

func (d *Discord) Notify(ctx context.Context, payload *Payload) error {
	var (
		body        io.Reader
		contentType string
		err         error
	)

	switch d.style {
	case DiscordStyleEmbed:
		body, contentType, err = discordEmbed(payload)
	default:
		body, contentType, err = discordFile(payload)
	}
	if err != nil {
		return errors.Wrap(err, "could not build discord request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, body)
	if err != nil {
		return errors.Wrap(err, "could not create discord request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "could not reach discord webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("discord webhook responded with %s: %s", resp.Status, bytes.TrimSpace(detail))
	}

	return nil
}

func discordFile(payload *Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("content", truncate(payload.Title, discordContentLimit)); err != nil {
		return nil, "", err
	}

	file, err := writer.CreateFormFile("file", payload.Filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(file, payload.Text); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

type discordWebhook struct {
	Embeds []discordEmbedObject `json:"embeds"`
}

type discordEmbedObject struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      discordFooter       `json:"footer"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func discordEmbed(payload *Payload) (io.Reader, string, error) {
	embed := discordEmbedObject{
		Title:  truncate(payload.Title, discordTitleLimit),
		Color:  discordColor,
		Footer: discordFooter{Text: "mailhook"},
	}
	if payload.Error {
		embed.Color = discordErrorColor
		embed.Description = truncate(payload.Text, discordDescriptionLimit)
	}
	if !payload.Timestamp.IsZero() {
		embed.Timestamp = payload.Timestamp.UTC().Format(time.RFC3339)
	}

	for _, field := range payload.Fields {
		if len(embed.Fields) == discordFieldCountLimit {
			break
		}

		// Discord rejects embeds with empty field values.
		value := field.Value
		if value == "" {
			value = "-"
		}
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   truncate(field.Name, discordFieldNameLimit),
			Value:  truncate(value, discordFieldValueLimit),
			Inline: field.Inline,
		})
	}

	data, err := json.Marshal(discordWebhook{Embeds: []discordEmbedObject{embed}})
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}
