// Package notify formats and delivers best effort notifications about
// received emails.
package notify

import (
	"context"
)

// Notifier delivers a payload with a single attempt. A returned error
// means the payload was not accepted; it is never retried.
type Notifier interface {
	Notify(ctx context.Context, payload *Payload) error

	// Returns the human-readable name of this transport.
	Name() string
}

// Discard accepts every payload without sending it anywhere.
type Discard struct{}

func (Discard) Notify(ctx context.Context, payload *Payload) error {
	return nil
}

func (Discard) Name() string {
	return "discard"
}
