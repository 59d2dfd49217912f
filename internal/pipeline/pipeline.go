// Package pipeline runs a single inbound message through filtering,
// extraction, persistence and notification.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/ksdme/mailhook/internal/extract"
	"github.com/ksdme/mailhook/internal/message"
	"github.com/ksdme/mailhook/internal/models"
	"github.com/ksdme/mailhook/internal/notify"
	"github.com/pkg/errors"
)

// The capabilities of whatever delivered the message.
type Transport interface {
	// Refuses the message with a human readable reason.
	Reject(reason string) error

	// Sends the original message on to another address.
	Forward(ctx context.Context, address string) error
}

// Where accepted emails are written. Insert must assign the id.
type Store interface {
	Insert(ctx context.Context, email *models.Email) error
}

// Decides whether a sender is refused.
type Matcher interface {
	IsBlocked(address string) bool
}

// How an invocation ended. All of them are completions.
type Outcome int

const (
	Done Outcome = iota
	Blocked
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Blocked:
		return "blocked"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Options struct {
	Blocklist Matcher
	Store     Store
	Formatter *notify.Formatter

	// Optional. Without a notifier stored emails are not announced.
	Notifier notify.Notifier

	// Optional. Receives a short report for every failed invocation.
	ErrorNotifier notify.Notifier

	// Optional. Failed messages are forwarded here.
	FallbackAddress string

	RejectReason string
}

type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Formatter == nil {
		opts.Formatter = notify.NewFormatter(nil, 0, 0)
	}
	if opts.RejectReason == "" {
		opts.RejectReason = "Email blocked by system policy."
	}

	return &Pipeline{opts: opts}
}

// Processes the raw message. It never fails from the point of view of
// the caller, failures are handled here and reported as Failed.
func (p *Pipeline) Handle(ctx context.Context, raw []byte, transport Transport) (outcome Outcome) {
	logger := slog.With("trace", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			outcome = Failed
			p.fail(ctx, logger, transport, errors.Errorf("panic while processing email: %v", r))
		}
	}()

	outcome, err := p.run(ctx, logger, raw, transport)
	if err != nil {
		p.fail(ctx, logger, transport, err)
		return Failed
	}

	logger.Debug("finished processing email", "outcome", outcome)
	return outcome
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, raw []byte, transport Transport) (Outcome, error) {
	msg, err := message.Parse(raw)
	if err != nil {
		return Failed, stageError(ErrParse, err)
	}
	logger = logger.With("from", msg.Sender)

	// A message without a sender cannot match any entry.
	if msg.Sender != "" && p.opts.Blocklist != nil && p.opts.Blocklist.IsBlocked(msg.Sender) {
		logger.Info("rejecting email from blocked sender")
		if transport != nil {
			if err := transport.Reject(p.opts.RejectReason); err != nil {
				logger.Error("could not reject email", "err", err)
			}
		}
		return Blocked, nil
	}

	content := extract.Extract(msg.HTML)

	email := &models.Email{
		Recipient: models.UnknownAddress,
		Sender:    models.UnknownAddress,
		Subject:   models.NoSubject,
		BodyText:  msg.Text,
		BodyHTML:  msg.HTML,
		RawEmail:  string(raw),
	}
	names := notify.Names{Sender: msg.SenderName}

	if msg.Sender != "" {
		email.Sender = msg.Sender
	}
	if recipient := msg.Recipient(); recipient != nil && recipient.Address != "" {
		email.Recipient = recipient.Address
		names.Recipient = recipient.Name
	}
	if subject := strings.TrimSpace(msg.Subject); subject != "" {
		email.Subject = subject
	}
	if strings.TrimSpace(email.BodyText) == "" {
		email.BodyText = content.Text
	}

	if err := p.opts.Store.Insert(ctx, email); err != nil {
		return Failed, stageError(ErrPersistence, err)
	}
	logger = logger.With("id", email.ID)
	logger.Info("stored email")

	if p.opts.Notifier == nil {
		return Done, nil
	}

	payload := p.opts.Formatter.Format(email, content, names)
	if err := p.opts.Notifier.Notify(ctx, payload); err != nil {
		return Failed, stageError(ErrNotification, errors.Wrapf(err, "email %d via %s", email.ID, p.opts.Notifier.Name()))
	}

	logger.Debug("sent notification", "notifier", p.opts.Notifier.Name())
	return Done, nil
}

// Best effort recovery. The fallback forward and the error report are
// independent of each other and their failures are only logged.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, transport Transport, cause error) {
	logger.Error("could not process email", "err", cause)

	if p.opts.FallbackAddress != "" && transport != nil {
		err := safely(func() error {
			return transport.Forward(ctx, p.opts.FallbackAddress)
		})
		if err != nil {
			logger.Error("could not forward email to fallback address", "to", p.opts.FallbackAddress, "err", err)
		} else {
			logger.Info("forwarded email to fallback address", "to", p.opts.FallbackAddress)
		}
	}

	if p.opts.ErrorNotifier != nil {
		err := safely(func() error {
			return p.opts.ErrorNotifier.Notify(ctx, p.opts.Formatter.FormatError(cause))
		})
		if err != nil {
			logger.Error("could not send error notification", "notifier", p.opts.ErrorNotifier.Name(), "err", err)
		}
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	return fn()
}
