package notify

import (
	"context"
	"time"

	"github.com/lestrrat-go/slack"
	"github.com/pkg/errors"
)

// Slack truncates longer messages on its own, but warns about it.
const slackTextLimit = 40000

// Posts the plain text summary to a Slack channel.
type Slack struct {
	client  *slack.Client
	channel string
	timeout time.Duration
}

func NewSlack(token string, channel string, timeout time.Duration) *Slack {
	return &Slack{
		client:  slack.New(token),
		channel: channel,
		timeout: timeout,
	}
}

func (s *Slack) Name() string {
	return "slack"
}

func (s *Slack) Notify(ctx context.Context, payload *Payload) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.client.Chat().
		PostMessage(s.channel).
		Username("mailhook").
		Text(slackText(payload)).
		Do(ctx)
	if err != nil {
		return errors.Wrap(err, "could not post slack message")
	}

	return nil
}

func slackText(payload *Payload) string {
	return truncate("*"+payload.Title+"*\n"+payload.Text, slackTextLimit)
}
