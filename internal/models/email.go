package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Used when the source message does not carry an address.
const UnknownAddress = "unknown"

// Used when the source message has an empty subject.
const NoSubject = "(No Subject)"

// A received email. Records are created once by the ingestion pipeline
// and are never updated, only deleted.
type Email struct {
	bun.BaseModel `bun:"table:emails,alias:e"`

	ID        int64  `bun:",pk,autoincrement" json:"id"`
	Recipient string `bun:",notnull" json:"recipient"`
	Sender    string `bun:",notnull" json:"sender"`
	Subject   string `bun:",type:text" json:"subject"`
	BodyText  string `bun:"body_text,type:longtext" json:"body_text"`
	BodyHTML  string `bun:"body_html,type:longtext" json:"body_html"`
	RawEmail  string `bun:"raw_email,type:longtext" json:"raw_email"`

	ReceivedAt time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"received_at"`
}

// The listing view of an email, without any of the bodies.
type Summary struct {
	ID         int64     `json:"id"`
	Recipient  string    `json:"recipient"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
}

func (e Email) Summary() Summary {
	return Summary{
		ID:         e.ID,
		Recipient:  e.Recipient,
		Sender:     e.Sender,
		Subject:    e.Subject,
		ReceivedAt: e.ReceivedAt,
	}
}
