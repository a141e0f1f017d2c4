package entity

import "time"

// LedgerEvent is the append-only audit record of a transaction transition.
type LedgerEvent struct {
	ID uint64

	TransactionID uint64

	EventType string

	OldStatus *int32
	NewStatus int32

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}
