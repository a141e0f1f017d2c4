package entity

import "time"

const (
	WebhookRecordProcessed int32 = 10
	WebhookRecordRejected  int32 = 20
)

// WebhookRecord keeps every inbound provider callback, processed or rejected,
// with its signature and raw payload for forensics.
type WebhookRecord struct {
	ID uint64

	TransactionID *uint64

	Provider    string
	EventType   string
	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
